package analysis

import (
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/llm"
)

func queueValue(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func incomingQueues(a llm.Amounts) []*float64 {
	return []*float64{a.Queue1, a.Queue2, a.Queue3, a.Queue4, a.Queue5, a.Queue6}
}

// isDuplicate reports whether the incoming amounts match the stored
// claim on every queue within the tolerance. Repeated rulings restate
// the same sums, so a full match means nothing new was recognized.
func isDuplicate(claim *database.CreditorClaim, amounts llm.Amounts, tolerance float64) bool {
	stored := claim.Queues()
	incoming := incomingQueues(amounts)
	for i := range stored {
		diff := queueValue(stored[i]) - queueValue(incoming[i])
		if diff < -tolerance || diff > tolerance {
			return false
		}
	}
	return true
}

// mergeAmounts folds incoming amounts into the claim, keeping the
// larger sum per queue. Amounts never decrease: a summary ruling that
// omits a queue must not erase what an earlier ruling recognized.
func mergeAmounts(claim *database.CreditorClaim, amounts llm.Amounts) bool {
	targets := []**float64{
		&claim.Queue1, &claim.Queue2, &claim.Queue3,
		&claim.Queue4, &claim.Queue5, &claim.Queue6,
	}
	incoming := incomingQueues(amounts)

	changed := false
	for i, in := range incoming {
		if in == nil {
			continue
		}
		cur := *targets[i]
		if cur == nil || *in > *cur {
			v := *in
			*targets[i] = &v
			changed = true
		}
	}
	return changed
}
