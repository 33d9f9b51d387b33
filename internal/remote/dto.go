package remote

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beansync/beansync/internal/model"
)

// Wire shapes for the ledger service's JSON. Amounts arrive as JSON
// numbers; shopspring decimals unmarshal them without float drift.

type userDTO struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type accountDTO struct {
	ID                  int64            `json:"id"`
	Name                string           `json:"name"`
	Type                string           `json:"type"`
	CurrencyCode        string           `json:"currency_code"`
	StartingBalance     *decimal.Decimal `json:"starting_balance"`
	StartingBalanceDate string           `json:"starting_balance_date"`
	CurrentBalance      *decimal.Decimal `json:"current_balance"`
}

type categoryDTO struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	ParentID *int64        `json:"parent_id"`
	Children []categoryDTO `json:"children"`
}

type categoryRefDTO struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	IsTransfer bool   `json:"is_transfer"`
}

type accountRefDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type transactionDTO struct {
	ID                 int64            `json:"id"`
	Date               string           `json:"date"`
	Amount             decimal.Decimal  `json:"amount"`
	CurrencyCode       string           `json:"currency_code"`
	Payee              string           `json:"payee"`
	Note               string           `json:"note"`
	Memo               string           `json:"memo"`
	Labels             []string         `json:"labels"`
	NeedsReview        bool             `json:"needs_review"`
	IsTransfer         bool             `json:"is_transfer"`
	ClosingBalance     *decimal.Decimal `json:"closing_balance"`
	UpdatedAt          time.Time        `json:"updated_at"`
	TransactionAccount *accountRefDTO   `json:"transaction_account"`
	Category           *categoryRefDTO  `json:"category"`
}

// updatePayload is the PUT body for transaction updates. Pointer fields
// are omitted when nil so an update only names the fields it changes.
type updatePayload struct {
	Payee       *string   `json:"payee,omitempty"`
	Note        *string   `json:"note,omitempty"`
	Memo        *string   `json:"memo,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
	CategoryID  *int64    `json:"category_id,omitempty"`
	NeedsReview *bool     `json:"needs_review,omitempty"`
	IsTransfer  *bool     `json:"is_transfer,omitempty"`
}

func (a accountDTO) toModel() model.Account {
	acct := model.Account{
		ID:             a.ID,
		DisplayName:    a.Name,
		Type:           model.AccountTypeFromService(a.Type),
		Currency:       a.CurrencyCode,
		OpeningBalance: a.StartingBalance,
	}
	if a.StartingBalanceDate != "" {
		if d, err := model.ParseDate(a.StartingBalanceDate); err == nil {
			acct.OpeningDate = d
		}
	}
	return acct
}

// flattenCategories walks the category forest depth-first, attaching
// parent ids that the nested wire shape leaves implicit.
func flattenCategories(dtos []categoryDTO, parent *int64) []model.Category {
	var out []model.Category
	for _, c := range dtos {
		pid := c.ParentID
		if pid == nil {
			pid = parent
		}
		out = append(out, model.Category{ID: c.ID, Title: c.Title, ParentID: pid})
		id := c.ID
		out = append(out, flattenCategories(c.Children, &id)...)
	}
	return out
}

// toModel converts a wire transaction, lifting the note's [key:value]
// tokens into the first-class paired/suspect fields. The narration
// keeps the clean note text; when the note is empty the memo stands in.
func (t transactionDTO) toModel() (model.Transaction, error) {
	date, err := model.ParseDate(t.Date)
	if err != nil {
		return model.Transaction{}, err
	}

	text, meta := model.DecodeNoteMetadata(t.Note)
	narration := text
	if narration == "" {
		narration = t.Memo
	}

	txn := model.Transaction{
		ID:             t.ID,
		Date:           date,
		Amount:         t.Amount,
		Currency:       t.CurrencyCode,
		Payee:          t.Payee,
		Narration:      narration,
		Labels:         model.NewLabelSet(t.Labels...),
		NeedsReview:    t.NeedsReview,
		IsTransfer:     t.IsTransfer,
		ClosingBalance: t.ClosingBalance,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.TransactionAccount != nil {
		txn.AccountID = t.TransactionAccount.ID
	}
	if t.Category != nil {
		id := t.Category.ID
		txn.CategoryID = &id
		if t.Category.IsTransfer {
			txn.IsTransfer = true
		}
	}
	if v, ok := meta["paired"]; ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			txn.PairedID = &id
		}
	}
	if v, ok := meta["suspect_reason"]; ok {
		txn.SuspectReason = v
	}
	return txn, nil
}

// encodeNote rebuilds the remote note field from a transaction's
// narration plus its pairing annotations.
func encodeNote(t *model.Transaction) string {
	meta := make(map[string]string)
	if t.PairedID != nil {
		meta["paired"] = strconv.FormatInt(*t.PairedID, 10)
	}
	if t.SuspectReason != "" {
		meta["suspect_reason"] = t.SuspectReason
	}
	return model.EncodeNoteMetadata(t.Narration, meta)
}
