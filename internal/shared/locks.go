package shared

import "fmt"

// PayeeLockKey builds the redis key serialising payment writes for one payee.
func PayeeLockKey(payeeType, recipientID string) string {
	return fmt.Sprintf("finance:payee:%s:%s:lock", payeeType, recipientID)
}
