package seal

import "github.com/google/uuid"

// uuidString tags each evidence submission so authority-side retries can be
// correlated with a single append attempt.
func uuidString() string { return uuid.NewString() }
