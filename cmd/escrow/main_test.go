package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/escrow/journal"
)

const swapScenario = `
contract: swap
timeout: 1s
issuers:
  - name: moola
    strategy: nat
  - name: simolean
    strategy: nat
parties:
  - role: alice
    offer:
      - rule: offerExactly
        nat: 3
      - rule: wantExactly
        nat: 7
  - role: bob
    offer:
      - rule: wantExactly
        nat: 3
      - rule: offerExactly
        nat: 7
`

const lonelyScenario = `
contract: swap
timeout: 10ms
issuers:
  - name: moola
    strategy: nat
  - name: simolean
    strategy: nat
parties:
  - role: alice
    offer:
      - rule: offerExactly
        nat: 3
      - rule: wantExactly
        nat: 7
`

const refundScenario = `
contract: refund
issuers:
  - name: moola
    strategy: nat
parties:
  - role: alice
    offer:
      - rule: offerAtMost
        nat: 5
    deposit:
      - nat: 2
  - role: bob
    offer:
      - rule: offerExactly
        nat: 5
    deposit:
      - nat: 4
`

func TestMain_Error(t *testing.T) {
	setOutput(t)

	oldPrinter, oldArgs := printer, os.Args
	defer func() {
		printer, os.Args = oldPrinter, oldArgs
	}()

	buf := new(bytes.Buffer)
	printer = buf
	os.Args = []string{"escrow", "run"}

	main()

	require.Contains(t, buf.String(), "Required flag \"scenario\" not set")
}

func TestRun_Swap(t *testing.T) {
	buf := setOutput(t)

	dbPath := filepath.Join(t.TempDir(), "escrow.db")

	err := run([]string{"escrow", "run", "--scenario", writeFile(t, "swap.yaml", swapScenario),
		"--journal", dbPath})
	require.NoError(t, err)

	output := buf.String()
	require.Contains(t, output, "alice: The offer has been accepted")
	require.Contains(t, output, "bob: The offer has been accepted")
	require.Contains(t, output, "outcome: settled\n")
	require.Contains(t, output, "alice: payout [0 moola 7 simolean]\n")
	require.Contains(t, output, "alice: refund [0 moola 0 simolean]\n")
	require.Contains(t, output, "bob: payout [3 moola 0 simolean]\n")

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	require.Equal(t, 1, j.Len())

	var id string
	err = j.ForEach(func(r journal.Record) error {
		id = r.InstanceID
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	buf.Reset()

	err = run([]string{"escrow", "journal", "show", "--journal", dbPath, "--instance", id})
	require.NoError(t, err)
	require.Contains(t, buf.String(), id+" settled\n")
	require.Contains(t, buf.String(), "  0 alice: 0 moola 7 simolean\n")
	require.Contains(t, buf.String(), "  1 bob: 3 moola 0 simolean\n")

	buf.Reset()

	err = run([]string{"escrow", "journal", "show", "--journal", dbPath})
	require.NoError(t, err)
	require.Contains(t, buf.String(), id+" settled\n")

	err = run([]string{"escrow", "journal", "show", "--journal", dbPath, "--instance", "abc"})
	require.EqualError(t, err, "instance 'abc' not found")

	buf.Reset()

	err = run([]string{"escrow", "journal"})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "show")
}

func TestRun_Timeout(t *testing.T) {
	buf := setOutput(t)

	err := run([]string{"escrow", "run", "--scenario", writeFile(t, "lonely.yaml", lonelyScenario)})
	require.NoError(t, err)

	output := buf.String()
	require.Contains(t, output, "outcome: cancelled (timeout)\n")
	require.Contains(t, output, "alice: no payout: timeout: trade cancelled\n")
	require.Contains(t, output, "alice: refund [3 moola 0 simolean]\n")
}

func TestRun_Refund(t *testing.T) {
	buf := setOutput(t)

	err := run([]string{"escrow", "run", "--scenario", writeFile(t, "refund.yaml", refundScenario)})
	require.NoError(t, err)

	output := buf.String()
	require.Contains(t, output, "alice: The offer was accepted\n")
	require.Contains(t, output, "alice: refund [2 moola]\n")
	require.Contains(t, output, "bob: deposit refused: ")
	require.Contains(t, output, "outcome: cancelled (coordinator is closed)\n")
	require.Contains(t, output, "bob: refund [0 moola]\n")
}

func TestRun_Failures(t *testing.T) {
	setOutput(t)

	err := run([]string{"escrow", "run", "--scenario", filepath.Join(t.TempDir(), "none.yaml")})
	require.Error(t, err)
	require.Regexp(t, "^failed to read scenario: ", err.Error())

	scenario := writeFile(t, "swap.yaml", swapScenario)

	err = run([]string{"escrow", "run", "--scenario", scenario, "--journal", t.TempDir()})
	require.Error(t, err)
	require.Regexp(t, "^failed to open journal: ", err.Error())

	err = run([]string{"escrow", "run", "--scenario", scenario, "--promaddr", "not an address"})
	require.Error(t, err)
	require.Regexp(t, "^failed to start metrics: ", err.Error())

	err = run([]string{"escrow", "journal", "show", "--journal", t.TempDir()})
	require.Error(t, err)
	require.Regexp(t, "^failed to open journal: ", err.Error())
}

func TestStartMetrics(t *testing.T) {
	srv, err := startMetrics("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Stop()

	resp, err := http.Get(fmt.Sprintf("http://%s%s", srv.Addr(), metricsPath))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "escrow_trade_settlements_total")
	require.Contains(t, string(body), "escrow_journal_records_total")
}

// -----------------------------------------------------------------------------
// Utility functions

func setOutput(t *testing.T) *bytes.Buffer {
	old := out
	t.Cleanup(func() {
		out = old
	})

	buf := new(bytes.Buffer)
	out = buf

	return buf
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)

	err := ioutil.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)

	return path
}
