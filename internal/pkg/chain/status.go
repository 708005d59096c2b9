package chain

type TxStatus string

const (
	TxPending     TxStatus = "pending"
	TxSuccess     TxStatus = "success"
	TxReverted    TxStatus = "reverted"
	TxUnconfirmed TxStatus = "unconfirmed"
)

func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxReverted
}
