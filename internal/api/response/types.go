package response

// Health is the body of the health endpoint
type Health struct {
	Status  string `json:"status"`
	Server  string `json:"server"`
	Storage string `json:"storage"`
}

// Stats reports the size of the in-memory registries
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}
