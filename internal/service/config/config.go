package config

type Config struct {
	// адрес платежного провайдера; пусто - подтверждение без внешней проверки
	PaymentProviderAddr string `envconfig:"PAYMENT_PROVIDER_ADDRESS" default:""`
	// сколько раз повторять переход при смене статуса другим запросом
	TransitionAttempts int `envconfig:"TRANSITION_ATTEMPTS" default:"3"`
}
