package gmail

import (
	"fmt"
	"time"
)

// billingQueryTerms is the coarse filter pushed down to the mailbox
// provider; the classifier gate does the precise filtering afterwards.
const billingQueryTerms = "(receipt OR invoice OR charged OR billed OR payment OR subscription OR renewal)"

// BuildQuery combines a date lower-bound with the billing keyword OR-set.
func BuildQuery(after time.Time) string {
	return fmt.Sprintf("after:%s %s", after.Format("2006/01/02"), billingQueryTerms)
}
