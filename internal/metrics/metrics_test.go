package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/mint"
)

func TestRegistryExportsCounters(t *testing.T) {
	m := NewRegistry()
	m.IncConnect("ok")
	m.IncRefresh("failed")
	m.Transition(mint.Job{State: mint.Submitting})
	m.Transition(mint.Job{State: mint.Failed, Cause: mint.CauseContractRevert})
	m.Connected(nil, common.Address{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`nftmint_connect_attempts_total{result="ok"} 1`,
		`nftmint_collection_refreshes_total{result="failed"} 1`,
		`nftmint_mint_transitions_total{state="submitting"} 1`,
		`nftmint_mint_failures_total{cause="contract_revert"} 1`,
		`nftmint_session_connected 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, out)
		}
	}

	m.Disconnected()
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "nftmint_session_connected 0") {
		t.Fatalf("expected gauge reset on disconnect")
	}
}
