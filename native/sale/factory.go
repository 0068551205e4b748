package sale

import (
	"fmt"

	coreevents "github.com/rakshitdev007/remix-contracts/core/events"
	"github.com/rakshitdev007/remix-contracts/core/state"
	"github.com/rakshitdev007/remix-contracts/native/common"
)

// Template carries the instance-independent configuration a factory stamps
// onto every engine it deploys.
type Template struct {
	SaleToken     string
	TokenDecimals uint8
	SaleVault     [20]byte
	StakeVault    [20]byte
	ReferralVault [20]byte
	Feed          PriceFeed
	Compliance    common.ComplianceOracle
}

// Factory constructs independent engine instances from a shared template.
// Each instance owns its state manager, so deployments do not observe one
// another.
type Factory struct {
	template Template
}

// NewFactory validates the template and returns a factory for it.
func NewFactory(template Template) (*Factory, error) {
	if template.SaleToken == "" {
		return nil, fmt.Errorf("sale: factory template requires a sale token")
	}
	var zero [20]byte
	if template.SaleVault == zero || template.StakeVault == zero || template.ReferralVault == zero {
		return nil, ErrZeroAddress
	}
	return &Factory{template: template}, nil
}

// Deploy initializes a new engine over the manager with the template's
// configuration and the given owner. Deploying twice onto the same state
// fails with ErrAlreadyInitialized.
func (f *Factory) Deploy(mgr *state.Manager, owner [20]byte, emitter coreevents.Emitter) (*Engine, error) {
	engine := NewEngine(mgr)
	engine.SetEmitter(emitter)
	engine.SetPriceFeed(f.template.Feed)
	engine.SetCompliance(f.template.Compliance)
	if err := engine.Initialize(InitParams{
		Owner:         owner,
		SaleToken:     f.template.SaleToken,
		TokenDecimals: f.template.TokenDecimals,
		SaleVault:     f.template.SaleVault,
		StakeVault:    f.template.StakeVault,
		ReferralVault: f.template.ReferralVault,
	}); err != nil {
		return nil, err
	}
	return engine, nil
}

// Attach wraps an already initialized state without re-running Initialize.
// It fails with ErrNotInitialized when the state has never been deployed to.
func (f *Factory) Attach(mgr *state.Manager, emitter coreevents.Emitter) (*Engine, error) {
	if _, err := loadMeta(mgr); err != nil {
		return nil, err
	}
	engine := NewEngine(mgr)
	engine.SetEmitter(emitter)
	engine.SetPriceFeed(f.template.Feed)
	engine.SetCompliance(f.template.Compliance)
	return engine, nil
}
