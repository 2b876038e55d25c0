package risk

import "errors"

var (
	ErrRiskLimitExceeded  = errors.New("risk limit exceeded")
	ErrRejected           = errors.New("order rejected by risk gate")
	ErrInvalidLedger      = errors.New("invalid ledger config")
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
	ErrInvalidAdjusterCfg = errors.New("invalid notch adjuster config")
)
