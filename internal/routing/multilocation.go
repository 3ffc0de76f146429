package routing

import (
	"fmt"

	"xchain-router.backend/internal/domain/entities"
)

// MultiLocation is XCM's hierarchical address of an asset or account: a
// parent-count plus a sequence of junctions terminating at the endpoint
// (e.g. Parachain(2006) / AccountId32(0x...)). Only the junction shapes the
// router and converter actually need are modeled: an optional parachain hop
// and a trailing account junction that may be left unset in a template and
// filled in later via WithBeneficiary.
type MultiLocation struct {
	ParentCount uint8
	Parachain   *uint32
	Beneficiary *entities.Address
}

// WithBeneficiary returns a copy of the template location with its trailing
// address junction substituted - the mechanism that turns a bridge edge's
// destMultiLocationTemplate into a concrete fullDestMultiLocation for one
// recipient.
func (m MultiLocation) WithBeneficiary(addr entities.Address) MultiLocation {
	out := m
	out.Beneficiary = &addr
	return out
}

func (m MultiLocation) String() string {
	s := fmt.Sprintf("parents(%d)", m.ParentCount)
	if m.Parachain != nil {
		s += fmt.Sprintf("/parachain(%d)", *m.Parachain)
	}
	if m.Beneficiary != nil {
		s += fmt.Sprintf("/account(%s)", m.Beneficiary.String())
	} else {
		s += "/account(<template>)"
	}
	return s
}
