package valueobject

// DenialReason classifies why the quota ledger refused a request. Denials
// are business outcomes, not errors; infrastructure failures travel on the
// error path instead.
type DenialReason string

// Denial reason constants.
const (
	DenialReasonNone                 DenialReason = ""
	DenialReasonResourceDisabled     DenialReason = "resource_disabled"
	DenialReasonDailyLimitExceeded   DenialReason = "daily_limit_exceeded"
	DenialReasonMonthlyLimitExceeded DenialReason = "monthly_limit_exceeded"
)

// String returns the string representation of the reason.
func (r DenialReason) String() string {
	return string(r)
}

// QuotaDimension names which counter pair a denial applies to: the
// per-call request counters or the unit counters.
type QuotaDimension string

// Quota dimension constants.
const (
	QuotaDimensionNone     QuotaDimension = ""
	QuotaDimensionRequests QuotaDimension = "requests"
	QuotaDimensionUnits    QuotaDimension = "units"
)

// String returns the string representation of the dimension.
func (d QuotaDimension) String() string {
	return string(d)
}
