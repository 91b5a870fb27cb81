package transport

const (
	PROTOCOL_CONTENT_LENGTH_PREFIX = "Content-Length: "
	PROTOCOL_HEADER_FORMAT         = "Content-Length: %d\r\n\r\n%s"

	ERROR_CLIENT_STOPPED         = "channel stopped"
	ERROR_CLIENT_NOT_ACTIVE      = "channel not active"
	ERROR_SEND_NOTIFICATION      = "failed to send notification: %w"
	ERROR_SEND_REQUEST           = "failed to send request: %w"
	ERROR_WRITE_MESSAGE          = "failed to write message: %w"
	ERROR_MARSHAL_MESSAGE        = "failed to marshal message: %w"
	ERROR_INVALID_CONTENT_LENGTH = "invalid Content-Length: %s"

	// MethodInitialize is the channel handshake request; the ready signal
	// fires after its response arrives.
	MethodInitialize = "initialize"

	// MethodVersion is the zero-argument version request used by the
	// compatibility handshake.
	MethodVersion = "version"
)
