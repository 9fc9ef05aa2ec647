package swarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/swarmsim/swarmsim/pkg/simhash"
)

// fakeNetwork is a minimal in-memory PeerNetwork for pipeline tests: it
// looks up canned responses per (toPeerID, hash) pair and records credit
// and transfer-event calls for assertions.
type fakeNetwork struct {
	mu        sync.Mutex
	responses map[string][]byte // keyed by toPeerID+"/"+hash
	errs      map[string]error
	credited  []string
	transfers []fakeTransfer
}

type fakeTransfer struct {
	from, to, hash string
	successful     bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
	}
}

func (f *fakeNetwork) key(toPeerID, hash string) string { return toPeerID + "/" + hash }

func (f *fakeNetwork) setResponse(toPeerID, hash string, data []byte) {
	f.responses[f.key(toPeerID, hash)] = data
}

func (f *fakeNetwork) setErr(toPeerID, hash string, err error) {
	f.errs[f.key(toPeerID, hash)] = err
}

func (f *fakeNetwork) RequestFromPeer(_ context.Context, _, toPeerID, hash string, _ time.Duration) ([]byte, error) {
	k := f.key(toPeerID, hash)
	if err, ok := f.errs[k]; ok {
		return nil, err
	}
	if data, ok := f.responses[k]; ok {
		return data, nil
	}
	return nil, ErrPeerMissingResource
}

func (f *fakeNetwork) CreditUpload(peerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credited = append(f.credited, peerID)
}

func (f *fakeNetwork) RecordTransfer(from, to, hash string, successful bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, fakeTransfer{from, to, hash, successful})
}

type fakeOrigin struct {
	content []byte
	mime    string
	err     error
	calls   int
}

func (o *fakeOrigin) Fetch(_ context.Context, _, _ string) ([]byte, string, error) {
	o.calls++
	if o.err != nil {
		return nil, "", o.err
	}
	return o.content, o.mime, nil
}

func withPeer(hash string, advertisers ...PeerInfo) *Peer {
	p := NewPeer("requester", 10, 5, BrowserWeights(), 10, 0)
	for _, info := range advertisers {
		p.AddPeer(info)
	}
	return p
}

func advertiser(id string, reputation float64, hashes ...string) PeerInfo {
	var entries []ManifestEntry
	for _, h := range hashes {
		entries = append(entries, ManifestEntry{Hash: h})
	}
	return PeerInfo{
		PeerID:     id,
		LastSeenMs: 0,
		Reputation: reputation,
		Manifest:   Manifest{PeerID: id, Resources: entries},
	}
}

func TestRequestResource_LocalCacheHit(t *testing.T) {
	content := []byte("hello")
	hash := simhash.Sum(content)

	p := NewPeer("requester", 10, 5, BrowserWeights(), 10, 0)
	p.store(Resource{Hash: hash, Content: content})

	out := p.RequestResource(context.Background(), hash, "/x", newFakeNetwork(), &fakeOrigin{}, 0)
	if !out.Success || out.Source != SourceLocalCache {
		t.Fatalf("got %+v, want local-cache success", out)
	}
}

func TestRequestResource_NoProviders_FallsBackToOrigin(t *testing.T) {
	hash := simhash.Sum([]byte("z"))
	p := NewPeer("requester", 10, 5, BrowserWeights(), 10, 0)
	origin := &fakeOrigin{content: []byte("z"), mime: "text/plain"}

	out := p.RequestResource(context.Background(), hash, "/z", newFakeNetwork(), origin, 0)
	if !out.Success || out.Source != SourceOrigin {
		t.Fatalf("got %+v, want origin success", out)
	}
	if origin.calls != 1 {
		t.Fatalf("origin.calls = %d, want 1", origin.calls)
	}
}

func TestRequestResource_PeerServesOnFirstTry(t *testing.T) {
	content := []byte("chunk-data")
	hash := simhash.Sum(content)

	p := withPeer(hash, advertiser("alice", 5, hash))
	net := newFakeNetwork()
	net.setResponse("alice", hash, content)

	out := p.RequestResource(context.Background(), hash, "/x", net, &fakeOrigin{}, 0)
	if !out.Success || out.Source != SourcePeerCache || out.PeerID != "alice" {
		t.Fatalf("got %+v, want peer-cache success from alice", out)
	}
	if len(net.credited) != 1 || net.credited[0] != "alice" {
		t.Fatalf("credited = %v, want [alice]", net.credited)
	}
	if !p.CacheHas(hash) {
		t.Fatal("resource not cached after successful peer fetch")
	}
}

func TestRequestResource_HashMismatchAdvancesToNextPeer(t *testing.T) {
	content := []byte("real-content")
	hash := simhash.Sum(content)

	p := withPeer(hash, advertiser("bad", 10, hash), advertiser("good", 1, hash))
	net := newFakeNetwork()
	net.setResponse("bad", hash, []byte("wrong-bytes"))
	net.setResponse("good", hash, content)

	out := p.RequestResource(context.Background(), hash, "/x", net, &fakeOrigin{}, 0)
	if !out.Success || out.PeerID != "good" {
		t.Fatalf("got %+v, want fallback success from good", out)
	}
	_, failed, _ := p.Counters()
	if failed != 1 {
		t.Fatalf("failedTransfers = %d, want 1", failed)
	}
}

func TestRequestResource_StaleManifestEntrySkippedWithoutConsumingAttempt(t *testing.T) {
	content := []byte("v")
	hash := simhash.Sum(content)

	// carol's chunk-index entry outlives her PeerInfo's manifest, the way
	// a race between UpdateConnections and a stale republish could leave
	// things; nextCandidate must skip her without spending an attempt.
	p := withPeer(hash, advertiser("carol", 10, hash), advertiser("dave", 1, hash))
	stale := p.peerIndex["carol"]
	stale.Manifest = Manifest{PeerID: "carol"}

	net := newFakeNetwork()
	net.setResponse("dave", hash, content)

	out := p.RequestResource(context.Background(), hash, "/x", net, &fakeOrigin{}, 0)
	if !out.Success || out.PeerID != "dave" || out.Attempts != 1 {
		t.Fatalf("got %+v, want single-attempt success from dave", out)
	}
}

func TestRequestResource_ExhaustsRetriesThenOrigin(t *testing.T) {
	hash := simhash.Sum([]byte("x"))
	p := withPeer(hash, advertiser("p1", 3, hash), advertiser("p2", 2, hash), advertiser("p3", 1, hash))
	net := newFakeNetwork()
	net.setErr("p1", hash, ErrTimeout)
	net.setErr("p2", hash, ErrTimeout)
	net.setErr("p3", hash, ErrTimeout)
	origin := &fakeOrigin{content: []byte("x")}

	out := p.RequestResource(context.Background(), hash, "/x", net, origin, 0)
	if !out.Success || out.Source != SourceOrigin || out.Attempts != maxRetries {
		t.Fatalf("got %+v, want origin success after %d attempts", out, maxRetries)
	}
	if origin.calls != 1 {
		t.Fatalf("origin.calls = %d, want 1", origin.calls)
	}
}

func TestRequestResource_OriginFailureIsUnsuccessfulNotError(t *testing.T) {
	hash := simhash.Sum([]byte("missing"))
	p := NewPeer("requester", 10, 5, BrowserWeights(), 10, 0)
	origin := &fakeOrigin{err: errors.New("origin rejected")}

	out := p.RequestResource(context.Background(), hash, "/missing", newFakeNetwork(), origin, 0)
	if out.Success {
		t.Fatalf("got success, want Success=false after origin rejection")
	}
}
