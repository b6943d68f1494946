package main

import (
	"io/ioutil"
	"time"

	"go.dedis.ch/escrow/asset/mem"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity"
	"go.dedis.ch/escrow/quantity/nat"
	"go.dedis.ch/escrow/quantity/set"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	contractSwap   = "swap"
	contractRefund = "refund"
)

// Scenario is the description of a trade to run. It is read from a YAML file:
//
// 	contract: swap
// 	timeout: 2s
// 	issuers:
// 	  - name: moola
// 	    strategy: nat
// 	  - name: tickets
// 	    strategy: set
// 	parties:
// 	  - role: alice
// 	    offer:
// 	      - rule: offerExactly
// 	        nat: 3
// 	      - rule: wantExactly
// 	        set: [row1]
//
// A party deposits what it offers unless a deposit is given, one entry per
// issuer.
type Scenario struct {
	Contract string        `yaml:"contract"`
	Timeout  time.Duration `yaml:"timeout"`
	Issuers  []IssuerSpec  `yaml:"issuers"`
	Parties  []PartySpec   `yaml:"parties"`
}

// IssuerSpec declares an asset kind of the trade.
type IssuerSpec struct {
	Name     string `yaml:"name"`
	Strategy string `yaml:"strategy"`
}

// PartySpec declares a party, its offer and what it deposits.
type PartySpec struct {
	Role    string         `yaml:"role"`
	Offer   []RuleSpec     `yaml:"offer"`
	Deposit []QuantitySpec `yaml:"deposit"`
}

// RuleSpec is the rule of one slot of an offer.
type RuleSpec struct {
	Rule         string `yaml:"rule"`
	QuantitySpec `yaml:",inline"`
}

// QuantitySpec is a quantity of either strategy. Only the field that matches
// the strategy of the slot is read.
type QuantitySpec struct {
	Nat uint64   `yaml:"nat"`
	Set []string `yaml:"set"`
}

// LoadScenario reads and validates the scenario of the file.
func LoadScenario(path string) (Scenario, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Scenario{}, xerrors.Errorf("failed to read scenario: %v", err)
	}

	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (Scenario, error) {
	var s Scenario

	err := yaml.UnmarshalStrict(data, &s)
	if err != nil {
		return Scenario{}, xerrors.Errorf("failed to decode scenario: %v", err)
	}

	err = s.validate()
	if err != nil {
		return Scenario{}, xerrors.Errorf("invalid scenario: %v", err)
	}

	return s, nil
}

func (s Scenario) validate() error {
	switch s.Contract {
	case contractSwap, contractRefund:
	default:
		return xerrors.Errorf("unknown contract '%s'", s.Contract)
	}

	if len(s.Issuers) == 0 {
		return xerrors.New("no issuer")
	}

	for _, spec := range s.Issuers {
		_, err := makeStrategy(spec.Strategy)
		if err != nil {
			return xerrors.Errorf("issuer '%s': %v", spec.Name, err)
		}
	}

	roles := make(map[string]struct{})

	for _, party := range s.Parties {
		_, found := roles[party.Role]
		if found {
			return xerrors.Errorf("role '%s' appears twice", party.Role)
		}

		roles[party.Role] = struct{}{}

		if len(party.Offer) != len(s.Issuers) {
			return xerrors.Errorf("party '%s': expected %d rules but got %d",
				party.Role, len(s.Issuers), len(party.Offer))
		}

		if len(party.Deposit) > len(s.Issuers) {
			return xerrors.Errorf("party '%s': expected at most %d deposits but got %d",
				party.Role, len(s.Issuers), len(party.Deposit))
		}
	}

	return nil
}

// MakeIssuers creates an in-memory issuer for every declared asset kind.
func (s Scenario) MakeIssuers() ([]*mem.Issuer, error) {
	issuers := make([]*mem.Issuer, len(s.Issuers))

	for i, spec := range s.Issuers {
		strategy, err := makeStrategy(spec.Strategy)
		if err != nil {
			return nil, xerrors.Errorf("issuer '%s': %v", spec.Name, err)
		}

		issuers[i] = mem.NewIssuer(spec.Name, strategy)
	}

	return issuers, nil
}

// MakeDescription returns the offer of the party.
func (p PartySpec) MakeDescription(terms offer.Terms) (offer.Description, error) {
	strategies := terms.Strategies()

	kinds := make([]offer.RuleKind, len(p.Offer))
	quantities := make([]quantity.Quantity, len(p.Offer))

	for i, rule := range p.Offer {
		if i >= len(strategies) {
			return offer.Description{}, xerrors.Errorf("expected %d rules but got %d",
				len(strategies), len(p.Offer))
		}

		kinds[i] = offer.RuleKind(rule.Rule)
		quantities[i] = rule.QuantitySpec.For(strategies[i])
	}

	return offer.MakeDescription(strategies, terms.Labels(), kinds, quantities)
}

// Deposits returns the quantity the party deposits for every slot.
func (p PartySpec) Deposits(terms offer.Terms) []quantity.Quantity {
	strategies := terms.Strategies()
	deposits := make([]quantity.Quantity, len(strategies))

	for i, s := range strategies {
		switch {
		case p.Deposit != nil && i < len(p.Deposit):
			deposits[i] = p.Deposit[i].For(s)
		case p.Deposit == nil && i < len(p.Offer) && offer.RuleKind(p.Offer[i].Rule).IsOffer():
			deposits[i] = p.Offer[i].QuantitySpec.For(s)
		default:
			deposits[i] = s.Empty()
		}
	}

	return deposits
}

// For returns the quantity for the strategy.
func (q QuantitySpec) For(s quantity.Strategy) quantity.Quantity {
	if s.Name() == set.StrategyName {
		return set.New(q.Set...)
	}

	return q.Nat
}

func makeStrategy(name string) (quantity.Strategy, error) {
	switch name {
	case nat.StrategyName:
		return nat.NewStrategy(), nil
	case set.StrategyName:
		return set.NewStrategy(), nil
	default:
		return nil, xerrors.Errorf("unknown strategy '%s'", name)
	}
}
