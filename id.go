package learngate

import "github.com/xraph/learngate/id"

// ID is the primary identifier type for learngate entities.
type ID = id.ID

// TransactionID identifies a payment attempt.
type TransactionID = id.TransactionID
