package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"montevecchio/internal/models"
)

// AddShoppingItem appends an unchecked item to the checklist.
func AddShoppingItem(state *models.GroupState, label string) (*models.ShoppingItem, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}
	item := models.ShoppingItem{ID: uuid.NewString(), Label: label}
	state.ShoppingChecklist = append(state.ShoppingChecklist, item)
	return &item, nil
}

func SetShoppingItemChecked(state *models.GroupState, id string, checked bool) (*models.ShoppingItem, error) {
	for i := range state.ShoppingChecklist {
		if state.ShoppingChecklist[i].ID == id {
			state.ShoppingChecklist[i].Checked = checked
			item := state.ShoppingChecklist[i]
			return &item, nil
		}
	}
	return nil, ErrItemNotFound
}

func RemoveShoppingItem(state *models.GroupState, id string) (*models.ShoppingItem, error) {
	for i, item := range state.ShoppingChecklist {
		if item.ID == id {
			state.ShoppingChecklist = append(state.ShoppingChecklist[:i:i], state.ShoppingChecklist[i+1:]...)
			return &item, nil
		}
	}
	return nil, ErrItemNotFound
}

// PostBoardMessage puts a message on top of the blackboard.
func PostBoardMessage(state *models.GroupState, author, text string, now time.Time) (*models.BoardMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	author = strings.TrimSpace(author)
	if author == "" {
		return nil, ErrEmptyUserName
	}
	msg := models.BoardMessage{Text: text, Author: author, PostedAt: now}
	state.Board = append([]models.BoardMessage{msg}, state.Board...)
	return &msg, nil
}

// LatestBoardMessage returns the newest message, or nil on an empty board.
func LatestBoardMessage(state *models.GroupState) *models.BoardMessage {
	if len(state.Board) == 0 {
		return nil
	}
	msg := state.Board[0]
	return &msg
}
