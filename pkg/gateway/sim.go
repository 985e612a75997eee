// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package gateway

import (
	"crypto/ed25519"
	"math/rand"
	"sync"
	"time"

	"github.com/echa/log"
)

// Decrypter reveals ciphertext handles on the oracle side.
type Decrypter interface {
	Decrypt(handle []byte) (uint64, error)
}

// Callback is what the oracle delivers back to the contract.
type Callback struct {
	RequestID RequestID
	Bundle    []byte
	Proof     []byte
	Failed    bool
}

// SimOracle is a single-node oracle for development and tests. Requests stay
// pending until resolved explicitly or, when started, until the configured
// delay has passed.
type SimOracle struct {
	mu       sync.Mutex
	dec      Decrypter
	key      ed25519.PrivateKey
	next     RequestID
	pending  map[RequestID][3][]byte
	delay    time.Duration
	failRate float64
	rnd      *rand.Rand
	deliver  func(Callback)
}

var _ Oracle = (*SimOracle)(nil)

func NewSimOracle(dec Decrypter, key ed25519.PrivateKey) *SimOracle {
	return &SimOracle{
		dec:     dec,
		key:     key,
		pending: make(map[RequestID][3][]byte),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (o *SimOracle) PublicKey() ed25519.PublicKey {
	return o.key.Public().(ed25519.PublicKey)
}

// Start makes the oracle answer every new request after delay. A share of
// failRate requests is answered with a failure callback.
func (o *SimOracle) Start(delay time.Duration, failRate float64, deliver func(Callback)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delay = delay
	o.failRate = failRate
	o.deliver = deliver
}

// Resume continues request numbering after last, e.g. after the contract
// was restored from a snapshot.
func (o *SimOracle) Resume(last RequestID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if last > o.next {
		o.next = last
	}
}

func (o *SimOracle) RequestDecryption(handles [3][]byte) (RequestID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.pending[id] = handles
	if o.deliver != nil {
		fail := o.failRate > 0 && o.rnd.Float64() < o.failRate
		deliver := o.deliver
		time.AfterFunc(o.delay, func() {
			var (
				cb  Callback
				err error
			)
			if fail {
				cb, err = o.Fail(id)
			} else {
				cb, err = o.Resolve(id)
			}
			if err != nil {
				log.Warnf("oracle: request %d: %v", id, err)
				return
			}
			deliver(cb)
		})
	}
	log.Debugf("oracle: accepted request %d", id)
	return id, nil
}

// Resolve decrypts a pending request and signs the result. Undecryptable
// handles turn into a failure callback.
func (o *SimOracle) Resolve(id RequestID) (Callback, error) {
	handles, err := o.take(id)
	if err != nil {
		return Callback{}, err
	}
	var vals [3]uint64
	for i, h := range handles {
		v, err := o.dec.Decrypt(h)
		if err != nil {
			log.Debugf("oracle: request %d: decrypt field %d: %v", id, i, err)
			return o.failure(id), nil
		}
		vals[i] = v
	}
	bundle, err := EncodeBundle(Bundle{Level: vals[0], Category: vals[1], Severity: vals[2]})
	if err != nil {
		return Callback{}, err
	}
	return Callback{
		RequestID: id,
		Bundle:    bundle,
		Proof:     Sign(o.key, id, bundle),
	}, nil
}

// Fail answers a pending request with a signed failure.
func (o *SimOracle) Fail(id RequestID) (Callback, error) {
	if _, err := o.take(id); err != nil {
		return Callback{}, err
	}
	return o.failure(id), nil
}

func (o *SimOracle) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *SimOracle) failure(id RequestID) Callback {
	return Callback{
		RequestID: id,
		Proof:     SignFailure(o.key, id),
		Failed:    true,
	}
}

func (o *SimOracle) take(id RequestID) ([3][]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.pending[id]
	if !ok {
		return h, ErrUnknownRequest
	}
	delete(o.pending, id)
	return h, nil
}
