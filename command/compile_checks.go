package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-psd2-sca/core"
)

var (
	_ gocmd.Commander[InitiateAuthorisationMessage] = (*InitiateAuthorisationCommand)(nil)
	_ gocmd.Commander[AuthorisePsuMessage]          = (*AuthorisePsuCommand)(nil)
	_ gocmd.Commander[SelectScaMethodMessage]       = (*SelectScaMethodCommand)(nil)
	_ gocmd.Commander[ConfirmCodeMessage]           = (*ConfirmCodeCommand)(nil)
	_ gocmd.Commander[RevokeConsentMessage]         = (*RevokeConsentCommand)(nil)

	_ AuthorisationService = (*core.Service)(nil)
)
