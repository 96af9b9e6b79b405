package httpnet

import "github.com/openmediate/gateway/internal/adapter"

// Partner wire error codes. The partner API returns these as the numeric
// `code` field of its bid response; the values are fixed by the partner's
// public API contract and must not be renumbered.
const (
	partnerCodeOK              = 0
	partnerCodeNoFill          = 1
	partnerCodeInvalidZone     = 2
	partnerCodeInvalidSize     = 3
	partnerCodeBadRequest      = 4
	partnerCodeThrottled       = 5
	partnerCodeConsentRequired = 6
	partnerCodeServerError     = 7
)

// codeTable is the pass-through translation from partner error codes to the
// mediation vocabulary. There is deliberately no logic here beyond the
// lookup: retry decisions belong to the mediation engine, not the adapter.
var codeTable = map[int]adapter.Code{
	partnerCodeNoFill:          adapter.CodeNoFill,
	partnerCodeInvalidZone:     adapter.CodeInvalidRequest,
	partnerCodeInvalidSize:     adapter.CodeInvalidBannerSize,
	partnerCodeBadRequest:      adapter.CodeInvalidRequest,
	partnerCodeThrottled:       adapter.CodeThrottled,
	partnerCodeConsentRequired: adapter.CodeConsentDenied,
	partnerCodeServerError:     adapter.CodeNetworkError,
}

// translateCode maps a partner error code to a mediation code. Codes the
// table does not know map to internal_error so new partner enum values fail
// loudly in metrics instead of masquerading as no-fills.
func translateCode(partnerCode int) adapter.Code {
	if code, ok := codeTable[partnerCode]; ok {
		return code
	}
	return adapter.CodeInternal
}
