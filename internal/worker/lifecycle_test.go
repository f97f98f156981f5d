package worker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/folio-shell/folio-shell/internal/cache"
)

func TestInstallCachesEveryManifestAsset(t *testing.T) {
	env := newTestEnv(t)
	env.network.serve(http.MethodGet, "/", http.StatusOK, "<html>root</html>")
	env.network.serve(http.MethodGet, "/index.html", http.StatusOK, "<html>index</html>")

	w := env.newWorker(t, testOptions("1.0.0", "/", "/index.html"))
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if w.State() != StateInstalled {
		t.Fatalf("expected installed state, got %s", w.State())
	}
	if !w.SkipWaitingRequested() {
		t.Fatalf("install should request skip waiting when configured")
	}

	keys := bucketKeys(t, env.store, "portfolio-v1.0.0")
	if len(keys) != 2 {
		t.Fatalf("expected 2 cached assets, got %v", keys)
	}
	want := map[string]bool{testOrigin + "/": true, testOrigin + "/index.html": true}
	for _, key := range keys {
		if !want[key.URL] || key.Method != http.MethodGet {
			t.Fatalf("unexpected cached key %v", key)
		}
	}
}

func TestInstallFailureLeavesNoPartialCache(t *testing.T) {
	env := newTestEnv(t)
	env.network.serve(http.MethodGet, "/", http.StatusOK, "root")
	// /js/main.js 未注册，stub 返回 404

	w := env.newWorker(t, testOptions("1.0.0", "/", "/js/main.js"))
	err := w.Install(context.Background())
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
	if w.State() != StateRedundant {
		t.Fatalf("failed install should make the worker redundant, got %s", w.State())
	}
	exists, err := env.store.Has(context.Background(), "portfolio-v1.0.0")
	if err != nil {
		t.Fatalf("has error: %v", err)
	}
	if exists && len(bucketKeys(t, env.store, "portfolio-v1.0.0")) != 0 {
		t.Fatalf("failed install must not leave cached entries")
	}
	if _, err := w.Dispatch(context.Background(), Event{Kind: EventActivate}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("redundant worker should reject events, got %v", err)
	}
}

func TestInstallFailsWhenOffline(t *testing.T) {
	env := newTestEnv(t)
	env.network.setOffline(true)

	w := env.newWorker(t, testOptions("1.0.0", "/"))
	if err := w.Install(context.Background()); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
}

func TestInstallWithoutSkipWaiting(t *testing.T) {
	env := newTestEnv(t)
	env.network.serve(http.MethodGet, "/", http.StatusOK, "root")
	opts := testOptions("1.0.0", "/")
	opts.SkipWaiting = false

	w := env.newWorker(t, opts)
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if w.SkipWaitingRequested() {
		t.Fatalf("skip waiting should stay off")
	}
}

func TestActivateDeletesStaleBuckets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.network.serve(http.MethodGet, "/", http.StatusOK, "root")
	if _, err := env.store.Open(ctx, "portfolio-v0.9.0"); err != nil {
		t.Fatalf("open old bucket: %v", err)
	}
	if _, err := env.store.Open(ctx, "unrelated-v3.0.0"); err != nil {
		t.Fatalf("open unrelated bucket: %v", err)
	}

	w := env.newWorker(t, testOptions("1.0.0", "/"))
	if err := w.Install(ctx); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("activate error: %v", err)
	}

	names, err := env.store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys error: %v", err)
	}
	if len(names) != 1 || names[0] != "portfolio-v1.0.0" {
		t.Fatalf("only the current bucket should remain, got %v", names)
	}
	if w.State() != StateActivated {
		t.Fatalf("expected activated, got %s", w.State())
	}
}

func TestActivateClaimsClients(t *testing.T) {
	env := newTestEnv(t)
	env.network.serve(http.MethodGet, "/", http.StatusOK, "root")
	env.clients.Touch("page-1", "/", "")
	env.clients.Touch("page-2", "/projects", "portfolio-v0.9.0")

	env.activeWorker(t, testOptions("1.0.0", "/"))

	for _, client := range env.clients.List() {
		if client.Controller != "portfolio-v1.0.0" {
			t.Fatalf("client %s should be claimed, controller=%s", client.ID, client.Controller)
		}
	}
}

func TestActivateRequiresInstalledState(t *testing.T) {
	env := newTestEnv(t)
	w := env.newWorker(t, testOptions("1.0.0", "/"))
	if err := w.Activate(context.Background()); err == nil {
		t.Fatalf("activate before install should fail")
	}
}

func TestInstallWriteFailureRemovesNewBucket(t *testing.T) {
	env := newTestEnv(t)
	env.network.serve(http.MethodGet, "/", http.StatusOK, "root")
	env.network.serve(http.MethodGet, "/index.html", http.StatusOK, "index")
	store := &faultyStore{Store: env.store, failPut: testOrigin + "/index.html"}

	w, err := New(testOptions("1.0.0", "/", "/index.html"), Deps{Store: store, Network: env.network, Logger: env.logger})
	if err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if err := w.Install(context.Background()); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
	exists, err := env.store.Has(context.Background(), "portfolio-v1.0.0")
	if err != nil {
		t.Fatalf("has error: %v", err)
	}
	if exists {
		t.Fatalf("bucket created by a failed install should be removed")
	}
}

func TestInstallWriteFailureKeepsExistingEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.network.serve(http.MethodGet, "/", http.StatusOK, "root")
	env.network.serve(http.MethodGet, "/index.html", http.StatusOK, "index")

	bucket, err := env.store.Open(ctx, "portfolio-v1.0.0")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	earlier := cache.NewKey(http.MethodGet, testOrigin+"/about")
	if _, err := bucket.Put(ctx, earlier, cache.Meta{Status: http.StatusOK}, strings.NewReader("about")); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	store := &faultyStore{Store: env.store, failPut: testOrigin + "/index.html"}
	w, err := New(testOptions("1.0.0", "/", "/index.html"), Deps{Store: store, Network: env.network, Logger: env.logger})
	if err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if err := w.Install(ctx); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}

	keys := bucketKeys(t, env.store, "portfolio-v1.0.0")
	if len(keys) != 1 || keys[0] != earlier {
		t.Fatalf("only the pre-existing entry should remain, got %v", keys)
	}
}
