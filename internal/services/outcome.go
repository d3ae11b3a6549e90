package services

import "fmt"

// Outcome — результат смены пароля. Нулевое значение не является валидным
// исходом и возвращается только вместе с ошибкой.
type Outcome int

const (
	Success Outcome = iota + 1
	SuccessInactive
	NotAdmin
	BindFailure
	NoSuchAccount
)

var outcomeNames = map[Outcome]string{
	Success:         "success",
	SuccessInactive: "success_inactive",
	NotAdmin:        "not_admin",
	BindFailure:     "bind_failure",
	NoSuchAccount:   "no_such_account",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Succeeded reports whether the password was written.
func (o Outcome) Succeeded() bool {
	return o == Success || o == SuccessInactive
}

// ResetOutcome — результат запроса ссылки на сброс пароля.
type ResetOutcome int

const (
	ResetSuccess ResetOutcome = iota + 1
	ResetAccountInactive
	ResetNoSuchAccount
	ResetNoForwardingAddress
)

var resetOutcomeNames = map[ResetOutcome]string{
	ResetSuccess:             "success",
	ResetAccountInactive:     "account_inactive",
	ResetNoSuchAccount:       "no_such_account",
	ResetNoForwardingAddress: "no_forwarding_address",
}

func (o ResetOutcome) String() string {
	if name, ok := resetOutcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("ResetOutcome(%d)", int(o))
}
