package interfaces

import "nepse-observer/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger shares live updates with external listeners (websocket push).
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// Broadcast pushes an update to connected listeners.
	Broadcast(payload *models.MLatestData)

	// Start the server
	Start() error

	// Stop the server gracefully
	Stop() error
}
