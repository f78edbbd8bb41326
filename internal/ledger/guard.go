package ledger

import "context"

// ownsWallet is the ownership guard. It is a single existence query filtered
// by both id and owner, so a foreign wallet and a missing one look the same.
func ownsWallet(ctx context.Context, st Store, walletID, ownerID string) (bool, error) {
	if walletID == "" || ownerID == "" {
		return false, nil
	}
	return st.WalletExists(ctx, walletID, ownerID)
}
