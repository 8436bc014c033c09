package processor

// EventTypeFinalize is the storage notification type emitted when an object
// upload completes. All other event types are ignored.
const EventTypeFinalize = "OBJECT_FINALIZE"

// StorageEvent is the storage notification payload carried by a push message.
type StorageEvent struct {
	EventType  string `json:"eventType"`
	BucketName string `json:"bucketName"`
	ObjectName string `json:"objectName"`
}
