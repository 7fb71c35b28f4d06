package config

import "time"

// PaymentConfig configures the simulated payment gateway and the currency
// tickets are charged in.
type PaymentConfig struct {
	Currency string
	// DeclineMethods are payment method ids the simulator declines.
	DeclineMethods []string
	// FailMethods are payment method ids for which the simulator returns
	// a transport error instead of a result.
	FailMethods []string
	// DeclineAbove is a major-unit amount ("500.00"); charges above it are
	// declined. Empty disables the rule.
	DeclineAbove string
	// BreakerThreshold consecutive gateway errors open the circuit.
	BreakerThreshold int
	// BreakerCooldown is how long the circuit stays open before a probe.
	BreakerCooldown time.Duration
}

func LoadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		Currency:         envStr("PAYMENT_CURRENCY", "USD"),
		DeclineMethods:   envList("PAYMENT_SIM_DECLINE_METHODS", []string{"pm_card_declined"}),
		FailMethods:      envList("PAYMENT_SIM_FAIL_METHODS", []string{"pm_gateway_down"}),
		DeclineAbove:     envStr("PAYMENT_SIM_DECLINE_ABOVE", ""),
		BreakerThreshold: envInt("PAYMENT_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  envDur("PAYMENT_BREAKER_COOLDOWN", 30*time.Second),
	}
}
