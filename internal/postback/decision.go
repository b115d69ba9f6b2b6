// Package postback decides whether and how to notify external
// partners about conversions, and delivers those notifications.
package postback

import "github.com/afftrack/afftrack/internal/model"

// ShouldTrigger is the single gate a postback sender consults before
// notifying a partner. Test conversions never trigger postbacks;
// everything else does. Fraud flags are advisory and do not suppress
// dispatch here.
func ShouldTrigger(conv *model.Conversion) bool {
	return !conv.IsTest()
}
