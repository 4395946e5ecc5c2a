package game

import (
	"github.com/flarepoly/game-engine/internal/apperr"
)

// Validation failures.
var (
	ErrInvalidPlayer      = apperr.New(apperr.KindValidation, "game: invalid player index")
	ErrInvalidPlayerCount = apperr.New(apperr.KindValidation, "game: player count must be between 2 and 4")
	ErrNotTradable        = apperr.New(apperr.KindValidation, "game: tile is not a tradable property")
	ErrInvalidPrice       = apperr.New(apperr.KindValidation, "game: price must be positive")
	ErrInvalidOfferKind   = apperr.New(apperr.KindValidation, "game: offer kind must be sell or buy")
	ErrSelfTrade          = apperr.New(apperr.KindValidation, "game: cannot trade with yourself")
	ErrWrongOwner         = apperr.New(apperr.KindValidation, "game: tile owner does not match offer")
	ErrInvalidChat        = apperr.New(apperr.KindValidation, "game: chat text must be 1 to 280 characters")
	ErrInvalidAddress     = apperr.New(apperr.KindValidation, "game: invalid wallet address")
)

// State conflicts.
var (
	ErrGameOver             = apperr.New(apperr.KindConflict, "game: game is over")
	ErrEliminated           = apperr.New(apperr.KindConflict, "game: player is eliminated")
	ErrSettlementPending    = apperr.New(apperr.KindConflict, "game: settlement pending")
	ErrBuyPromptOutstanding = apperr.New(apperr.KindConflict, "game: resolve the buy prompt first")
	ErrOfferOutstanding     = apperr.New(apperr.KindConflict, "game: answer the trade offer addressed to you first")
	ErrNoBuyPrompt          = apperr.New(apperr.KindConflict, "game: no matching buy prompt")
	ErrNoPendingSettlement  = apperr.New(apperr.KindConflict, "game: no pending settlement")
	ErrOfferNotFound        = apperr.New(apperr.KindConflict, "game: offer not found")
	ErrNotRecipient         = apperr.New(apperr.KindConflict, "game: offer is not addressed to player")
	ErrOwnershipChanged     = apperr.New(apperr.KindConflict, "game: tile changed hands; offer discarded")
	ErrInsufficientFunds    = apperr.New(apperr.KindConflict, "game: insufficient funds")
	ErrTxAlreadyUsed        = apperr.New(apperr.KindConflict, "game: transaction already used for a settlement")
	ErrWalletInUse          = apperr.New(apperr.KindConflict, "game: wallet already bound to another player")
	ErrSlotBound            = apperr.New(apperr.KindConflict, "game: player slot already has a wallet")
)

// ErrHalted is returned for every action after a persistence failure.
var ErrHalted = apperr.New(apperr.KindFatal, "game: engine halted after a persistence failure")
