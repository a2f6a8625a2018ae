package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Metrics(t *testing.T) {
	m := NewMetrics()

	m.RecordDecode(abi.KindFunction, DecodeOutcome_Decoded)
	m.RecordDecode(abi.KindFunction, DecodeOutcome_Decoded)
	m.RecordDecode(abi.KindEvent, DecodeOutcome_Unknown)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.decodes.WithLabelValues("function", "decoded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodes.WithLabelValues("event", "unknown")))

	m.RecordBlock(41, time.Millisecond)
	m.RecordBlock(42, time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.blocksProcessed))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.lastBlock))

	m.SetRepositorySize(120, 7)
	assert.Equal(t, float64(120), testutil.ToFloat64(m.signatures))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.contracts))

	m.RecordWrite("event")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.records.WithLabelValues("event")))
}

func Test_Handler(t *testing.T) {
	m := NewMetrics()
	m.SetRepositorySize(3, 1)

	server := httptest.NewServer(m.NewServer(0).Handler)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ethlogger_abi_signatures 3")
	assert.Contains(t, string(body), "ethlogger_abi_contracts 1")
}
