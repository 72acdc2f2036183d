package app

import (
	"strings"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

const DefaultConsultantPrefix = "consultant_"

// PrefixClassifier assigns the consultant role to identities carrying a
// well-known prefix; everyone else is a customer.
type PrefixClassifier struct {
	ConsultantPrefix string
}

func NewPrefixClassifier(prefix string) core.RoleClassifier {
	if prefix == "" {
		prefix = DefaultConsultantPrefix
	}
	return PrefixClassifier{ConsultantPrefix: prefix}
}

func (c PrefixClassifier) Classify(id domain.ParticipantID) domain.Role {
	if strings.HasPrefix(string(id), c.ConsultantPrefix) {
		return domain.RoleConsultant
	}
	return domain.RoleCustomer
}
