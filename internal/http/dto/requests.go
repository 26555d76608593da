package dto

type VerifyRequest struct {
	InitData  string `json:"init_data"`
	Mode      string `json:"mode"` // hmac / third_party
	Env       string `json:"env"`  // prod / test, только для third_party
	MaxAgeSec int    `json:"max_age_sec"`
}

type CreateInvoiceRequest struct {
	AmountRub int64 `json:"amount_rub"`
}

type AdjustBalanceRequest struct {
	TelegramUserID int64  `json:"telegram_user_id"`
	AmountRub      string `json:"amount_rub"` // строка, чтобы не терять копейки
	Comment        string `json:"comment"`
}
