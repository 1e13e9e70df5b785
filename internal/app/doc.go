// Package app composes the gas fee engine into a running application.
//
// # Architecture Role
//
// The app package sits above the fee services and is responsible for wiring
// them together with their storage and lifecycle dependencies. It is NOT a
// business logic layer - fee semantics live in internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, settings, wiring, lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── fee/            # Money math, quotes, receipts, error taxonomy
//	│   ├── wallet/         # Wallet accounts and ledger entries
//	│   └── sponsorship/    # Period-scoped subsidy budgets
//	├── services/           # Fee business logic
//	│   ├── classifier/     # Content classes and the activity tracker
//	│   ├── feecalc/        # Fee schedule, price oracle, quote calculator
//	│   ├── sponsorship/    # Subsidy pool and the period roller
//	│   ├── autoswap/       # Shortfall cover through the DEX
//	│   ├── distribution/   # Fee split across the pot accounts
//	│   ├── rates/          # External rate refresher for the oracle
//	│   └── engine/         # Quote and collect orchestration
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # WalletLedger, SponsorshipStore, ReceiptStore
//	│   ├── memory/         # In-memory implementation for testing
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── httpapi/            # HTTP handlers and routing
//	├── system/             # Lifecycle management (Service, Manager)
//	└── metrics/            # Prometheus collectors
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing the fee services with their dependencies
//   - Validating settings at startup and applying defaults
//   - Defining the storage interfaces services depend on
//   - Managing service lifecycle through the system manager
//
// # Dependency Direction
//
//	cmd/gasengine/
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/ (fee logic)
//	      │           │
//	      │           └──► internal/app/domain/ (models)
//	      │
//	      └──► internal/app/storage/ (persistence)
package app
