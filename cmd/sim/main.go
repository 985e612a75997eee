// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/config"
	"blockwatch.cc/envmon/pkg/envmon"
	"blockwatch.cc/envmon/pkg/fhe"
)

var (
	configPath   string
	nodeEndpoint string
	operator     string
	location     string
	count        int
	interval     time.Duration
	wait         time.Duration
	stakeString  string
	flags        = flag.NewFlagSet("sim", flag.ContinueOnError)
)

func init() {
	flags.Usage = func() {}
	flags.StringVar(&configPath, "config", os.Getenv("ENVMON_CONFIG"), "YAML config shared with the node (fhe keys, owner)")
	flags.StringVar(&nodeEndpoint, "node", "http://localhost:8080", "envmon node endpoint")
	flags.StringVar(&operator, "operator", "station-1.near", "station operator account")
	flags.StringVar(&location, "location", "Harbor North", "station location")
	flags.IntVar(&count, "n", 5, "number of readings to submit")
	flags.DurationVar(&interval, "interval", time.Second, "pause between readings")
	flags.DurationVar(&wait, "wait", 30*time.Second, "how long to wait for each verification")
	flags.StringVar(&stakeString, "stake", "0.01", "stake per report in units")
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

type client struct {
	url string
	hc  *http.Client
}

type txRequest struct {
	Method string          `json:"method"`
	Caller chain.AccountID `json:"caller"`
	Amount chain.Money     `json:"amount"`
	Args   interface{}     `json:"args"`
}

func (c *client) post(path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.hc.Post(c.url+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *client) get(path string, out interface{}) error {
	resp, err := c.hc.Get(c.url + path)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *client) tx(method string, caller chain.AccountID, amount chain.Money, args, out interface{}) error {
	return c.post("/tx", txRequest{method, caller, amount, args}, out)
}

func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, string(buf))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(buf, out)
}

func run() error {
	err := flags.Parse(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			fmt.Printf("Usage: %s [flags]\n", os.Args[0])
			fmt.Println("\nFlags")
			flags.PrintDefaults()
			return nil
		}
		return err
	}
	if configPath == "" {
		return fmt.Errorf("Empty config path, the sim needs the node's fhe keys")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	key, proofKey, err := cfg.SealerKeys()
	if err != nil {
		return err
	}
	if key == nil {
		return fmt.Errorf("config has no fhe keys")
	}
	sealer, err := fhe.NewSealer(key, proofKey)
	if err != nil {
		return err
	}
	stake, err := chain.ParseMoney(stakeString)
	if err != nil {
		return err
	}

	c := &client{url: nodeEndpoint, hc: &http.Client{Timeout: 10 * time.Second}}
	op := chain.AccountID(operator)

	if err := c.post("/faucet", map[string]interface{}{"account": op, "amount": stake.Mul(count)}, nil); err != nil {
		return fmt.Errorf("faucet: %w", err)
	}

	var sid envmon.StationId
	if err := c.tx("register_station", cfg.Owner, 0, map[string]interface{}{"location": location, "account": op}, &sid); err != nil {
		return fmt.Errorf("register station: %w", err)
	}
	log.Infof("Registered station %d at %q operated by %s", sid, location, op)

	if err := c.tx("set_threshold", cfg.Owner, 0, map[string]interface{}{"category": 1, "critical": 150, "warning": 100}, nil); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}

	seal := func(v uint64) (envmon.EncryptedInput, error) {
		h, p, err := sealer.Encrypt(v)
		return envmon.EncryptedInput{Handle: h, Proof: p}, err
	}

	for i := 0; i < count; i++ {
		level := uint64(60 + rand.Intn(80))
		var args struct {
			StationId envmon.StationId      `json:"station_id"`
			Level     envmon.EncryptedInput `json:"level"`
			Category  envmon.EncryptedInput `json:"category"`
			Severity  envmon.EncryptedInput `json:"severity"`
		}
		args.StationId = sid
		if args.Level, err = seal(level); err != nil {
			return err
		}
		if args.Category, err = seal(1); err != nil {
			return err
		}
		if args.Severity, err = seal(uint64(1 + rand.Intn(5))); err != nil {
			return err
		}

		var rid envmon.ReportId
		if err := c.tx("submit", op, stake, args, &rid); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		log.Infof("Submitted report %d (raw level %d, stake %s)", rid, level, stake)

		report, err := awaitReport(c, rid)
		if err != nil {
			log.Warnf("Report %d: %v", rid, err)
		} else if report.Reading != nil {
			log.Infof("Report %d %s: public level %d", rid, report.State, report.Reading.Level)
		} else {
			log.Infof("Report %d %s", rid, report.State)
		}
		time.Sleep(interval)
	}

	var status envmon.Status
	if err := c.get("/status", &status); err != nil {
		return err
	}
	log.Infof("Contract has %d stations, %d reports, fees %s", status.Stations, status.Reports, status.Fees)
	return nil
}

func awaitReport(c *client, id envmon.ReportId) (envmon.Report, error) {
	deadline := time.Now().Add(wait)
	for {
		var r envmon.Report
		if err := c.get(fmt.Sprintf("/report?id=%d", id), &r); err != nil {
			return r, err
		}
		if r.State != envmon.Pending {
			return r, nil
		}
		if time.Now().After(deadline) {
			return r, fmt.Errorf("still pending after %s", wait)
		}
		<-time.After(500 * time.Millisecond)
	}
}
