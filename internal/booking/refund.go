package booking

// Cancellations closer than this to the appointment keep a late fee.
const refundWindowHours = 24

// lateRefundPercent is the share returned on a late cancellation.
const lateRefundPercent = 80

const lateRefundNote = "late cancellation fee applied"

// RefundFor computes the refund for a paid appointment cancelled
// hoursUntil hours before its start. It decides amounts only; the
// gateway call is the payment collaborator's job.
func RefundFor(amountCents int64, hoursUntil float64) (refundCents int64, note string) {
	if hoursUntil >= refundWindowHours {
		return amountCents, ""
	}
	return amountCents * lateRefundPercent / 100, lateRefundNote
}
