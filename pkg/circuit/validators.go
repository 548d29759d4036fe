package circuit

type ResetPayload struct {
	Rail *string `json:"rail,omitempty" validate:"omitempty,oneof=authenticated unauthenticated"`
}
