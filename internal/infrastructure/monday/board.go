package monday

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type rawItem struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Board        *rawRef       `json:"board,omitempty"`
	Group        *rawRef       `json:"group,omitempty"`
	ParentItem   *rawRef       `json:"parent_item,omitempty"`
	ColumnValues []ColumnValue `json:"column_values"`
	Subitems     []rawItem     `json:"subitems,omitempty"`
}

type rawRef struct {
	ID string `json:"id"`
}

func (r rawItem) toItem() Item {
	item := Item{
		Name:         r.Name,
		ColumnValues: make(map[string]ColumnValue, len(r.ColumnValues)),
	}
	item.ID, _ = strconv.ParseInt(r.ID, 10, 64)
	if r.Board != nil {
		item.BoardID, _ = strconv.ParseInt(r.Board.ID, 10, 64)
	}
	if r.ParentItem != nil {
		item.ParentID, _ = strconv.ParseInt(r.ParentItem.ID, 10, 64)
	}
	if r.Group != nil {
		item.GroupID = r.Group.ID
	}
	for _, cv := range r.ColumnValues {
		item.ColumnValues[cv.ID] = cv
	}
	return item
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func encodeColumns(cols ColumnValues) (string, error) {
	raw, err := json.Marshal(cols)
	if err != nil {
		return "", fmt.Errorf("monday: failed to encode column values: %w", err)
	}
	return string(raw), nil
}

// FindItemByProjectAndPO returns the PO board item with the project id and PO number
func (c *Client) FindItemByProjectAndPO(ctx context.Context, projectID, poNumber string) (*Item, error) {
	const query = `query ($board: ID!, $project: String!) {
		items_page_by_column_values(board_id: $board, limit: 100, columns: [{column_id: "project_id", column_values: [$project]}]) {
			items { id name group { id } column_values { id text value } }
		}
	}`
	var out struct {
		Page struct {
			Items []rawItem `json:"items"`
		} `json:"items_page_by_column_values"`
	}
	vars := map[string]any{"board": id(c.cfg.POBoardID), "project": projectID}
	if err := c.Execute(ctx, "find_po_item", query, vars, &out); err != nil {
		return nil, err
	}
	for _, raw := range out.Page.Items {
		item := raw.toItem()
		if item.Matches(ColumnPONumber, poNumber) {
			item.BoardID = c.cfg.POBoardID
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: PO item %s_%s", ErrNotFound, projectID, poNumber)
}

// FindGroupByProjectID returns the PO board group whose title starts with the project id
func (c *Client) FindGroupByProjectID(ctx context.Context, projectID string) (string, error) {
	const query = `query ($board: [ID!]) { boards(ids: $board) { groups { id title } } }`
	var out struct {
		Boards []struct {
			Groups []Group `json:"groups"`
		} `json:"boards"`
	}
	if err := c.Execute(ctx, "find_group", query, map[string]any{"board": []string{id(c.cfg.POBoardID)}}, &out); err != nil {
		return "", err
	}
	for _, b := range out.Boards {
		for _, g := range b.Groups {
			if strings.HasPrefix(g.Title, projectID) {
				return g.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: group for project %s", ErrNotFound, projectID)
}

// CreateItem creates a PO board item and returns its id
func (c *Client) CreateItem(ctx context.Context, groupID, name string, cols ColumnValues) (int64, error) {
	const query = `mutation ($board: ID!, $group: String, $name: String!, $cols: JSON) {
		create_item(board_id: $board, group_id: $group, item_name: $name, column_values: $cols) { id }
	}`
	encoded, err := encodeColumns(cols)
	if err != nil {
		return 0, err
	}
	var out struct {
		CreateItem rawRef `json:"create_item"`
	}
	vars := map[string]any{"board": id(c.cfg.POBoardID), "group": groupID, "name": name, "cols": encoded}
	if err := c.Execute(ctx, "create_item", query, vars, &out); err != nil {
		return 0, err
	}
	return strconv.ParseInt(out.CreateItem.ID, 10, 64)
}

// UpdateItemColumns changes columns of a PO board item
func (c *Client) UpdateItemColumns(ctx context.Context, itemID int64, cols ColumnValues) error {
	return c.changeColumns(ctx, "update_item", c.cfg.POBoardID, itemID, cols)
}

// UpdateSubitemColumns changes columns of a subitem. Subitems live on their
// own board, which is looked up from the subitem.
func (c *Client) UpdateSubitemColumns(ctx context.Context, subitemID int64, cols ColumnValues) error {
	sub, err := c.FetchItem(ctx, subitemID)
	if err != nil {
		return err
	}
	return c.changeColumns(ctx, "update_subitem", sub.BoardID, subitemID, cols)
}

func (c *Client) changeColumns(ctx context.Context, operation string, boardID, itemID int64, cols ColumnValues) error {
	if len(cols) == 0 {
		return nil
	}
	const query = `mutation ($board: ID!, $item: ID!, $cols: JSON!) {
		change_multiple_column_values(board_id: $board, item_id: $item, column_values: $cols) { id }
	}`
	encoded, err := encodeColumns(cols)
	if err != nil {
		return err
	}
	vars := map[string]any{"board": id(boardID), "item": id(itemID), "cols": encoded}
	return c.Execute(ctx, operation, query, vars, nil)
}

// ListSubitems returns the subitems of a PO item
func (c *Client) ListSubitems(ctx context.Context, parentID int64) ([]Item, error) {
	const query = `query ($ids: [ID!]) {
		items(ids: $ids) { subitems { id name board { id } column_values { id text value } } }
	}`
	var out struct {
		Items []rawItem `json:"items"`
	}
	if err := c.Execute(ctx, "list_subitems", query, map[string]any{"ids": []string{id(parentID)}}, &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, parentID)
	}
	subs := make([]Item, 0, len(out.Items[0].Subitems))
	for _, raw := range out.Items[0].Subitems {
		item := raw.toItem()
		item.ParentID = parentID
		subs = append(subs, item)
	}
	return subs, nil
}

// CreateSubitem creates a subitem under a PO item and returns its id
func (c *Client) CreateSubitem(ctx context.Context, parentID int64, name string, cols ColumnValues) (int64, error) {
	const query = `mutation ($parent: ID!, $name: String!, $cols: JSON) {
		create_subitem(parent_item_id: $parent, item_name: $name, column_values: $cols) { id }
	}`
	encoded, err := encodeColumns(cols)
	if err != nil {
		return 0, err
	}
	var out struct {
		CreateSubitem rawRef `json:"create_subitem"`
	}
	vars := map[string]any{"parent": id(parentID), "name": name, "cols": encoded}
	if err := c.Execute(ctx, "create_subitem", query, vars, &out); err != nil {
		return 0, err
	}
	return strconv.ParseInt(out.CreateSubitem.ID, 10, 64)
}

// FetchItem returns an item or subitem with its board, parent and columns
func (c *Client) FetchItem(ctx context.Context, itemID int64) (*Item, error) {
	const query = `query ($ids: [ID!]) {
		items(ids: $ids) { id name board { id } group { id } parent_item { id } column_values { id text value type } }
	}`
	var out struct {
		Items []rawItem `json:"items"`
	}
	if err := c.Execute(ctx, "fetch_item", query, map[string]any{"ids": []string{id(itemID)}}, &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	item := out.Items[0].toItem()
	return &item, nil
}

// FindContactByName returns the contact board row named name
func (c *Client) FindContactByName(ctx context.Context, name string) (*Contact, error) {
	const query = `query ($board: ID!, $name: String!) {
		items_page_by_column_values(board_id: $board, limit: 1, columns: [{column_id: "name", column_values: [$name]}]) {
			items { id name column_values(ids: ["phone", "email", "text1", "text3", "text84", "text6", "text14", "text2"]) { id text } }
		}
	}`
	var out struct {
		Page struct {
			Items []rawItem `json:"items"`
		} `json:"items_page_by_column_values"`
	}
	vars := map[string]any{"board": id(c.cfg.ContactBoardID), "name": name}
	if err := c.Execute(ctx, "find_contact", query, vars, &out); err != nil {
		return nil, err
	}
	if len(out.Page.Items) == 0 {
		return nil, fmt.Errorf("%w: contact %q", ErrNotFound, name)
	}
	item := out.Page.Items[0].toItem()
	return &Contact{
		ID:           item.ID,
		Name:         item.Name,
		Phone:        item.Text(ContactColumnPhone),
		Email:        item.Text(ContactColumnEmail),
		AddressLine1: item.Text(ContactColumnAddressLine1),
		City:         item.Text(ContactColumnCity),
		Zip:          item.Text(ContactColumnZip),
		Country:      item.Text(ContactColumnCountry),
		TaxType:      item.Text(ContactColumnTaxType),
		TaxNumber:    item.Text(ContactColumnTaxNumber),
	}, nil
}
