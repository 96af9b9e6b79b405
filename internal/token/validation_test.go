package token

import (
	"strings"
	"testing"
)

func TestGenerate_RejectsTooManyCustomParams(t *testing.T) {
	c := testClaims()
	c.CustomParams = map[string]string{}
	for i := 0; i <= MaxCustomParamsCount; i++ {
		c.CustomParams[strings.Repeat("k", i+1)] = "v"
	}

	if _, err := Generate(c, secret); err == nil {
		t.Error("expected error for too many custom params")
	}
}

func TestGenerate_RejectsOversizedCustomParams(t *testing.T) {
	cases := map[string]map[string]string{
		"long key":   {strings.Repeat("k", MaxCustomParamKeyLength+1): "v"},
		"long value": {"k": strings.Repeat("v", MaxCustomParamValueLength+1)},
		"empty key":  {"": "v"},
	}
	for name, params := range cases {
		c := testClaims()
		c.CustomParams = params
		if _, err := Generate(c, secret); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestGenerate_AcceptsParamsAtLimit(t *testing.T) {
	c := testClaims()
	c.CustomParams = map[string]string{
		strings.Repeat("k", MaxCustomParamKeyLength): strings.Repeat("v", MaxCustomParamValueLength),
	}
	if _, err := Generate(c, secret); err != nil {
		t.Errorf("params at limit should pass: %v", err)
	}
}
