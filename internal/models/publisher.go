package models

// Publisher represents an app or site that sends mediation requests to the
// gateway. The APIKey authenticates its requests.
type Publisher struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	APIKey string `json:"api_key"`
}

// GetPublisherByID returns the publisher with the given ID or nil if not found.
// This function delegates to the MediationDataStore for thread-safe access.
func GetPublisherByID(store MediationDataStore, id int) *Publisher {
	if store == nil {
		return nil
	}
	return store.GetPublisher(id)
}
