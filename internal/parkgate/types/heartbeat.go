package types

type HeartbeatRequest struct {
	FirmwareVersion string `json:"firmware_version,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_s,omitempty"`
	RSSIDbm         *int   `json:"rssi_dbm,omitempty"`
	IP              string `json:"ip,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	ReaderID   string `json:"reader_id"`
	Direction  string `json:"direction"`
	ServerTime string `json:"server_time"`
}
