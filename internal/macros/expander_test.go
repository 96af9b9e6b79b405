package macros

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testContext() *ExpansionContext {
	return &ExpansionContext{
		RequestID:   "req-1",
		Timestamp:   time.Unix(1724572800, 0).UTC(),
		NetworkID:   3,
		NetworkName: "partner-a",
		CreativeID:  "cr-9",
		PublisherID: 7,
		PlacementID: "plc-1",
		PriceCPM:    2.5,
	}
}

func TestExpandURL_StandardMacros(t *testing.T) {
	e := NewMacroExpanderForTesting(zap.NewNop(), false)

	got, err := e.ExpandURL(
		"https://t.example.com/c?req={AUCTION_ID}&net={NETWORK}&nid={NETWORK_ID}&cr={CREATIVE_ID}&pub={PUBLISHER_ID}&plc={PLACEMENT_ID}&ts={TIMESTAMP}&price={AUCTION_PRICE}",
		testContext(),
	)
	require.NoError(t, err)

	assert.Contains(t, got, "req=req-1")
	assert.Contains(t, got, "net=partner-a")
	assert.Contains(t, got, "nid=3")
	assert.Contains(t, got, "cr=cr-9")
	assert.Contains(t, got, "pub=7")
	assert.Contains(t, got, "plc=plc-1")
	assert.Contains(t, got, "ts=1724572800")
	assert.Contains(t, got, "price=2.5000")
	assert.NotContains(t, got, "{")
}

func TestExpandURL_CustomParams(t *testing.T) {
	e := NewMacroExpanderForTesting(zap.NewNop(), false)
	ctx := testContext()
	ctx.CustomParams = map[string]string{"campaign": "summer sale", "slot": "top"}

	got, err := e.ExpandURL("https://t.example.com/c?c={CUSTOM.campaign}&s={CUSTOM.slot}", ctx)
	require.NoError(t, err)

	// Values are URL encoded on expansion.
	assert.Contains(t, got, "c=summer+sale")
	assert.Contains(t, got, "s=top")
}

func TestExpandURL_CacheBusterChanges(t *testing.T) {
	e := NewMacroExpanderForTesting(zap.NewNop(), false)

	first, err := e.ExpandURL("https://t.example.com/c?cb={CACHEBUSTER}", testContext())
	require.NoError(t, err)
	second, err := e.ExpandURL("https://t.example.com/c?cb={CACHEBUSTER}", testContext())
	require.NoError(t, err)

	v1 := strings.TrimPrefix(first, "https://t.example.com/c?cb=")
	v2 := strings.TrimPrefix(second, "https://t.example.com/c?cb=")
	if _, err := strconv.ParseInt(v1, 10, 64); err != nil {
		t.Fatalf("cachebuster not numeric: %q", v1)
	}
	assert.NotEqual(t, v1, v2)
}

func TestExpandURL_UnknownMacroLeftAlone(t *testing.T) {
	e := NewMacroExpanderForTesting(zap.NewNop(), false)

	got, err := e.ExpandURL("https://t.example.com/c?x={NOT_A_MACRO}&req={AUCTION_ID}", testContext())
	require.NoError(t, err)

	assert.Contains(t, got, "{NOT_A_MACRO}")
	assert.Contains(t, got, "req=req-1")
}

func TestExpandURL_StrictModeFailsOnMacroError(t *testing.T) {
	e := NewMacroExpanderForTesting(zap.NewNop(), true)
	require.NoError(t, e.RegisterMacro("BROKEN", func(*ExpansionContext) (string, error) {
		return "", assert.AnError
	}))

	_, err := e.ExpandURL("https://t.example.com/c?x={BROKEN}", testContext())
	assert.Error(t, err)

	// Lenient mode continues past the failing macro.
	e.SetStrictMode(false)
	got, err := e.ExpandURL("https://t.example.com/c?x={BROKEN}&req={AUCTION_ID}", testContext())
	require.NoError(t, err)
	assert.Contains(t, got, "req=req-1")
}

func TestExpandURL_Empty(t *testing.T) {
	e := NewMacroExpanderForTesting(zap.NewNop(), false)
	got, err := e.ExpandURL("", testContext())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestValidateURL(t *testing.T) {
	e := NewMacroExpanderForTesting(zap.NewNop(), false)

	unsupported := e.ValidateURL("https://t.example.com/c?a={AUCTION_ID}&b={BOGUS}&c={CUSTOM.anything}")
	assert.Equal(t, []string{"BOGUS"}, unsupported)

	assert.Empty(t, e.ValidateURL("https://t.example.com/c?a={AUCTION_ID}"))
}
