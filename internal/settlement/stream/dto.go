package stream

// ClientMsg é a mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// BetID: obrigatório em subscribe/unsubscribe; "*" assina todas as apostas
type ClientMsg struct {
	Type  string `json:"type"`
	BetID string `json:"betId"`
}

// AllBets é a assinatura coringa
const AllBets = "*"
