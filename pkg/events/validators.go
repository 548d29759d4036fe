package events

type SubscribeQuery struct {
	Topic string `query:"topic" json:"topic,omitempty" validate:"omitempty,oneof=books"`
	Query string `query:"q" json:"q,omitempty" validate:"max=100"`
	Hash  string `query:"hash" json:"hash,omitempty" validate:"omitempty,hexadecimal,len=16"`
}
