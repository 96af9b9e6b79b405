package models

// NewTestMediationDataStore creates a new in-memory data store for testing
func NewTestMediationDataStore() MediationDataStore {
	return NewInMemoryMediationDataStore()
}
