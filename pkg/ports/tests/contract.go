package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/ports"
)

type sample struct {
	RunID       string   `json:"run_id"`
	InputSHA256 string   `json:"input_sha256"`
	Items       []string `json:"items"`
}

// ArtifactStoreContractTest is a reusable test suite that verifies if an adapter complies with ports.ArtifactStore.
func ArtifactStoreContractTest(t *testing.T, store ports.ArtifactStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_NotFound", func(t *testing.T) {
		var got sample
		err := store.Load(ctx, "absent", &got)
		if !errors.Is(err, domain.ErrArtifactNotFound) {
			t.Fatalf("expected ErrArtifactNotFound, got %v", err)
		}
		ok, err := store.Exists(ctx, "absent")
		if err != nil || ok {
			t.Errorf("expected absent artifact, got exists=%v err=%v", ok, err)
		}
	})

	t.Run("Save_Load", func(t *testing.T) {
		in := sample{RunID: "r1", InputSHA256: "abc", Items: []string{"装饰", "x"}}
		if err := store.Save(ctx, "project_profile", in); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		var out sample
		if err := store.Load(ctx, "project_profile", &out); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if out.RunID != in.RunID || out.InputSHA256 != in.InputSHA256 || len(out.Items) != 2 || out.Items[0] != "装饰" {
			t.Errorf("round trip mismatch: got %+v", out)
		}
		ok, err := store.Exists(ctx, "project_profile")
		if err != nil || !ok {
			t.Errorf("expected artifact to exist, got exists=%v err=%v", ok, err)
		}
	})

	t.Run("Save_Overwrites", func(t *testing.T) {
		if err := store.Save(ctx, "compose", sample{RunID: "first"}); err != nil {
			t.Fatal(err)
		}
		if err := store.Save(ctx, "compose", sample{RunID: "second"}); err != nil {
			t.Fatal(err)
		}
		var out sample
		if err := store.Load(ctx, "compose", &out); err != nil {
			t.Fatal(err)
		}
		if out.RunID != "second" {
			t.Errorf("expected overwrite, got %q", out.RunID)
		}
	})

	t.Run("Location", func(t *testing.T) {
		if store.Location("kg_context") == "" {
			t.Error("expected a non-empty location")
		}
	})
}
