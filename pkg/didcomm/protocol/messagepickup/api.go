/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import "time"

// ProtocolService is the mailbox side of message pickup. The forward handler and the outbound
// dispatcher queue through it, so every queue write takes the per-key lock.
type ProtocolService interface {
	// AddMessage queues payload for recipientKey.
	AddMessage(recipientKey string, payload []byte) error
	// Expire drops messages received before the given time and returns how many were dropped.
	Expire(before time.Time) (int, error)
	// SessionClosed forgets the live delivery state of a closed connection.
	SessionClosed(connectionID string)
}
