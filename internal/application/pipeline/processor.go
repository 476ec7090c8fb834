package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/accounts"
	"github.com/docsync/backend/internal/infrastructure/extraction"
	"github.com/docsync/backend/internal/infrastructure/monday"
	"github.com/docsync/backend/internal/infrastructure/storage"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultTerm is added to the invoice date when the invoice has no due date
const defaultTerm = 30 * 24 * time.Hour

// Repositories groups the stores the processor writes to
type Repositories struct {
	Contacts       procurement.ContactRepository
	PurchaseOrders procurement.PurchaseOrderRepository
	Invoices       procurement.InvoiceRepository
	Receipts       procurement.ReceiptRepository
	TaxForms       procurement.TaxFormRepository
}

// Processor applies file_added and folder_added events
type Processor struct {
	repos   Repositories
	files   Storage
	board   Board
	text    TextExtractor
	docs    DocumentExtractor
	codes   *accounts.CodeMap
	archive storage.DocumentArchive
	logger  *zap.Logger
}

// NewProcessor creates a processor. Documents are not archived until
// SetArchive is called.
func NewProcessor(
	repos Repositories,
	files Storage,
	board Board,
	text TextExtractor,
	docs DocumentExtractor,
	codes *accounts.CodeMap,
	logger *zap.Logger,
) *Processor {
	if codes == nil {
		codes = accounts.Default()
	}
	return &Processor{
		repos:   repos,
		files:   files,
		board:   board,
		text:    text,
		docs:    docs,
		codes:   codes,
		archive: storage.NoopArchive{},
		logger:  logger.With(zap.String("component", "processor")),
	}
}

// SetArchive sets where downloaded documents are copied to
func (p *Processor) SetArchive(a storage.DocumentArchive) {
	p.archive = a
}

// ProcessFolder makes sure the PO folder has an item on the board
func (p *Processor) ProcessFolder(ctx context.Context, ev *fileevent.FileEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "processor.folder", "project", ev.Project(), "po", ev.PO())
	defer span.End()

	_, err := p.ensurePOItem(ctx, ev, ev.Path)
	telemetry.RecordError(span, err)
	return err
}

// ProcessFile handles a document dropped into a PO folder
func (p *Processor) ProcessFile(ctx context.Context, ev *fileevent.FileEvent) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "processor.file", "path", ev.Path)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	info, ok := fileevent.ParseFilename(ev.FileName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidFileName, ev.FileName)
	}
	if info.ProjectID != ev.Project() || info.PONumber != ev.PO() {
		return fmt.Errorf("%w: %s_%s vs %s_%s", ErrPOMismatch, info.ProjectID, info.PONumber, ev.Project(), ev.PO())
	}

	item, err := p.ensurePOItem(ctx, ev, fileevent.ParentPath(ev.Path))
	if err != nil {
		return err
	}

	poType := fileevent.POType(ev.VendorType)
	switch {
	case info.FileType.IsTaxForm():
		return p.processTaxForm(ctx, ev, info, item)
	case info.FileType == fileevent.FileTypeInvoice && poType == fileevent.POTypeVendor:
		return p.processInvoice(ctx, ev, info, item)
	case info.FileType == fileevent.FileTypeReceipt && poType == fileevent.POTypeCC:
		return p.processReceipt(ctx, ev, info, item)
	}
	return fmt.Errorf("%w: %s in %s PO", ErrUnsupportedDocument, info.FileType, poType)
}

// ensurePOItem returns the board item of the event's PO, creating the item
// and the local PO rows when the board has none
func (p *Processor) ensurePOItem(ctx context.Context, ev *fileevent.FileEvent, folderPath string) (*monday.Item, error) {
	project, po := ev.Project(), ev.PO()
	item, err := p.board.FindItemByProjectAndPO(ctx, project, po)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, monday.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up PO item: %w", err)
	}

	link, err := p.files.CreateShareLink(ctx, folderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to share PO folder: %w", err)
	}

	vendor := ev.VendorName
	contact := p.resolveContact(ctx, vendor)
	status := procurement.POStatusCCPC
	if fileevent.POType(ev.VendorType) == fileevent.POTypeVendor {
		status = procurement.POStatusTaxFormNeeded
		if contact.HasCompleteTaxProfile() {
			status = procurement.POStatusApproved
		}
	}

	groupID, err := p.board.FindGroupByProjectID(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to find project group: %w", err)
	}
	cols := monday.ColumnValues{}.
		Text(monday.ColumnProjectID, project).
		Text(monday.ColumnPONumber, po).
		Link(monday.ColumnFolderLink, link, "Folder").
		Status(monday.ColumnStatus, status)
	if contact != nil && contact.PulseID != nil {
		cols.Connect(monday.ColumnContact, *contact.PulseID)
	}
	itemID, err := p.board.CreateItem(ctx, groupID, vendor, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to create PO item: %w", err)
	}
	p.logger.Info("Created PO item",
		zap.Int64("item_id", itemID),
		zap.String("project", project),
		zap.String("po", po),
		zap.String("status", status),
	)

	order, err := procurement.NewPurchaseOrder(project, po, vendor, ev.VendorType)
	if err != nil {
		return nil, err
	}
	order.PulseID = &itemID
	order.FolderLink = link
	order.State = status
	if contact != nil {
		order.ContactID = &contact.ID
	}
	if err := p.savePurchaseOrder(ctx, order); err != nil {
		return nil, err
	}
	folder := &procurement.DropboxFolder{
		BaseEntity:    shared.NewBaseEntity(),
		ProjectNumber: project,
		PONumber:      po,
		Path:          folderPath,
		ShareLink:     link,
	}
	if err := p.repos.PurchaseOrders.SaveFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to save PO folder: %w", err)
	}

	return &monday.Item{
		ID:      itemID,
		Name:    vendor,
		GroupID: groupID,
		ColumnValues: map[string]monday.ColumnValue{
			monday.ColumnProjectID: {ID: monday.ColumnProjectID, Text: project},
			monday.ColumnPONumber:  {ID: monday.ColumnPONumber, Text: po},
			monday.ColumnStatus:    {ID: monday.ColumnStatus, Text: status},
		},
	}, nil
}

func (p *Processor) savePurchaseOrder(ctx context.Context, order *procurement.PurchaseOrder) error {
	if err := p.repos.PurchaseOrders.EnsureProject(ctx, order.ProjectNumber); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	if err := p.repos.PurchaseOrders.Save(ctx, order); err != nil {
		return fmt.Errorf("failed to save purchase order: %w", err)
	}
	return nil
}

// resolveContact finds the vendor locally, then on the contact board. Board
// contacts are copied into the local table. Lookup failures yield nil.
func (p *Processor) resolveContact(ctx context.Context, vendor string) *procurement.Contact {
	if vendor == "" {
		return nil
	}
	contact, err := p.repos.Contacts.FindByName(ctx, vendor)
	if err == nil {
		return contact
	}
	if !errors.Is(err, shared.ErrNotFound) {
		p.logger.Warn("Contact lookup failed", zap.String("vendor", vendor), zap.Error(err))
		return nil
	}

	bc, err := p.board.FindContactByName(ctx, vendor)
	if err != nil {
		if !errors.Is(err, monday.ErrNotFound) {
			p.logger.Warn("Board contact lookup failed", zap.String("vendor", vendor), zap.Error(err))
		}
		return nil
	}
	contact = procurement.NewContact(bc.Name)
	contact.PulseID = &bc.ID
	contact.Email = bc.Email
	contact.Phone = bc.Phone
	contact.AddressLine1 = bc.AddressLine1
	contact.City = bc.City
	contact.Zip = bc.Zip
	contact.Country = bc.Country
	contact.TaxNumber = bc.TaxNumber
	if bc.TaxType != "" {
		contact.TaxType = bc.TaxType
	}
	if err := p.repos.Contacts.Save(ctx, contact); err != nil {
		p.logger.Warn("Failed to copy board contact", zap.String("vendor", vendor), zap.Error(err))
	}
	return contact
}

// localPO returns the stored PO, creating it from the board item when missing
func (p *Processor) localPO(ctx context.Context, ev *fileevent.FileEvent, item *monday.Item) (*procurement.PurchaseOrder, error) {
	order, err := p.repos.PurchaseOrders.FindByProjectAndPO(ctx, ev.Project(), ev.PO())
	if err == nil {
		if order.PulseID == nil {
			order.PulseID = &item.ID
			if err := p.repos.PurchaseOrders.Save(ctx, order); err != nil {
				return nil, fmt.Errorf("failed to save purchase order: %w", err)
			}
		}
		return order, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to load purchase order: %w", err)
	}

	vendor := item.Name
	if vendor == "" {
		vendor = ev.VendorName
	}
	order, err = procurement.NewPurchaseOrder(ev.Project(), ev.PO(), vendor, ev.VendorType)
	if err != nil {
		return nil, err
	}
	order.PulseID = &item.ID
	if status := item.Text(monday.ColumnStatus); status != "" {
		order.State = status
	}
	if err := p.savePurchaseOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (p *Processor) processTaxForm(ctx context.Context, ev *fileevent.FileEvent, info fileevent.FileInfo, item *monday.Item) error {
	link, err := p.files.CreateShareLink(ctx, ev.Path)
	if err != nil {
		return fmt.Errorf("failed to share tax form: %w", err)
	}
	cols := monday.ColumnValues{}.
		Link(monday.ColumnTaxLink, link, string(info.FileType)).
		Status(monday.ColumnStatus, procurement.POStatusNeedsVerification)
	if err := p.board.UpdateItemColumns(ctx, item.ID, cols); err != nil {
		return fmt.Errorf("failed to update PO item: %w", err)
	}

	order, err := p.localPO(ctx, ev, item)
	if err != nil {
		return err
	}
	order.TaxFormLink = link
	order.State = procurement.POStatusNeedsVerification
	if err := p.repos.PurchaseOrders.Save(ctx, order); err != nil {
		return fmt.Errorf("failed to save purchase order: %w", err)
	}

	form := &procurement.TaxForm{
		BaseEntity:    shared.NewBaseEntity(),
		ProjectNumber: ev.Project(),
		PONumber:      ev.PO(),
		ContactID:     order.ContactID,
		Type:          procurement.TaxFormType(info.FileType),
		Status:        procurement.TaxFormPending,
		FileLink:      link,
	}
	// W9 identity fields are best effort; the form is stored either way
	if info.FileType == fileevent.FileTypeW9 {
		if text, err := p.readText(ctx, ev); err == nil {
			w9 := extraction.ParseW9Details(text)
			form.EntityName = w9.Name
			form.TaxID = w9.TaxID
		} else {
			p.logger.Warn("Could not read W9", zap.String("path", ev.Path), zap.Error(err))
		}
	}
	if err := p.repos.TaxForms.Save(ctx, form); err != nil {
		return fmt.Errorf("failed to save tax form: %w", err)
	}
	return nil
}

// processInvoice mirrors an invoice onto the board and records it. A retry
// after a partial failure reuses the subitems already created for the file.
func (p *Processor) processInvoice(ctx context.Context, ev *fileevent.FileEvent, info fileevent.FileInfo, item *monday.Item) error {
	if _, err := p.repos.Invoices.FindByKey(ctx, ev.Project(), ev.PO(), info.FileNumber); err == nil {
		p.logger.Info("Invoice already recorded", zap.String("path", ev.Path))
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("failed to look up invoice: %w", err)
	}
	existing, err := p.fileSubitems(ctx, item.ID, info.FileNumber)
	if err != nil {
		return err
	}

	text, err := p.readText(ctx, ev)
	if err != nil {
		return err
	}
	data, err := p.docs.ExtractInvoice(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to extract invoice: %w", err)
	}
	link, err := p.files.CreateShareLink(ctx, ev.Path)
	if err != nil {
		return fmt.Errorf("failed to share invoice: %w", err)
	}
	if data.Description != "" {
		cols := monday.ColumnValues{}.Text(monday.ColumnDescription, data.Description)
		if err := p.board.UpdateItemColumns(ctx, item.ID, cols); err != nil {
			return fmt.Errorf("failed to update PO description: %w", err)
		}
	}

	order, err := p.localPO(ctx, ev, item)
	if err != nil {
		return err
	}
	if data.Description != "" {
		order.Description = data.Description
		if err := p.repos.PurchaseOrders.Save(ctx, order); err != nil {
			return fmt.Errorf("failed to save purchase order: %w", err)
		}
	}

	invoiceDate, hasInvoiceDate := extraction.ParseDate(data.InvoiceDate)
	dueDate, hasDueDate := extraction.ParseDate(data.DueDate)

	items := make([]*procurement.DetailItem, 0, len(data.LineItems))
	for i, line := range data.LineItems {
		detail, err := procurement.NewDetailItem(order, info.FileNumber, i+1)
		if err != nil {
			return err
		}
		detail.PaymentType = procurement.PaymentTypeInvoice
		detail.Description = line.ItemDescription
		detail.Rate = line.Rate.Decimal
		if !line.Quantity.IsZero() {
			detail.Quantity = line.Quantity.Decimal
		}
		detail.AccountCode = p.codes.Resolve(string(line.AccountNumber))
		detail.FileLink = link

		date, ok := extraction.ParseDate(line.Date)
		if !ok && hasInvoiceDate {
			date, ok = invoiceDate, true
		}
		if ok {
			detail.TransactionDate = &date
			due := date.Add(defaultTerm)
			if hasDueDate {
				due = dueDate
			}
			detail.DueDate = &due
		} else if hasDueDate {
			detail.DueDate = &dueDate
		}
		detail.Recalculate()

		var pulseID int64
		if i < len(existing) {
			pulseID = existing[i].ID
			p.logger.Info("Reusing subitem",
				zap.String("path", ev.Path),
				zap.Int("line", i+1),
				zap.Int64("pulse_id", pulseID),
			)
		} else if pulseID, err = p.createSubitem(ctx, item, detail); err != nil {
			return err
		}
		detail.PulseID = &pulseID
		detail.RecordCreated()
		items = append(items, detail)
	}

	total := procurement.SumSubTotals(items)
	if parsed := extraction.ParseInvoiceDetails(text); parsed.HasTotal {
		total = parsed.TotalAmount
	}
	inv, err := procurement.NewInvoice(ev.Project(), ev.PO(), info.FileNumber, total)
	if err != nil {
		return err
	}
	inv.FileLink = link
	if hasInvoiceDate {
		inv.TransactionDate = &invoiceDate
	}
	if hasDueDate {
		inv.DueDate = &dueDate
	}
	if inv.TransactionDate != nil && inv.DueDate != nil {
		inv.Term = int(inv.DueDate.Sub(*inv.TransactionDate).Hours() / 24)
	}
	if err := p.repos.Invoices.SaveWithItems(ctx, inv, items); err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	p.logger.Info("Recorded invoice",
		zap.String("project", ev.Project()),
		zap.String("po", ev.PO()),
		zap.String("invoice", info.FileNumber),
		zap.Int("lines", len(items)),
		zap.String("total", total.StringFixed(2)),
	)
	return nil
}

// fileSubitems returns the subitems already carrying fileNumber, in board
// order. The n-th one belongs to line n.
func (p *Processor) fileSubitems(ctx context.Context, parentID int64, fileNumber string) ([]monday.Item, error) {
	subs, err := p.board.ListSubitems(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subitems: %w", err)
	}
	var out []monday.Item
	for i := range subs {
		if subs[i].Matches(monday.SubitemColumnFileNumber, fileNumber) {
			out = append(out, subs[i])
		}
	}
	return out, nil
}

func (p *Processor) createSubitem(ctx context.Context, parent *monday.Item, d *procurement.DetailItem) (int64, error) {
	name := d.Description
	if name == "" {
		name = d.Vendor
	}
	cols := monday.ColumnValues{}.
		Status(monday.SubitemColumnStatus, monday.SubitemStatusPending).
		Text(monday.SubitemColumnFileNumber, d.DetailNumber).
		Text(monday.SubitemColumnDescription, d.Description).
		Text(monday.SubitemColumnRate, d.Rate.String()).
		Text(monday.SubitemColumnQuantity, d.Quantity.String()).
		Date(monday.SubitemColumnDate, dateText(d.TransactionDate)).
		Date(monday.SubitemColumnDueDate, dateText(d.DueDate)).
		Dropdown(monday.SubitemColumnAccountNumber, d.AccountCode).
		Link(monday.SubitemColumnLink, d.FileLink, "Invoice")
	id, err := p.board.CreateSubitem(ctx, parent.ID, name, cols)
	if err != nil {
		return 0, fmt.Errorf("failed to create subitem: %w", err)
	}
	return id, nil
}

func (p *Processor) processReceipt(ctx context.Context, ev *fileevent.FileEvent, info fileevent.FileInfo, item *monday.Item) error {
	if _, err := p.repos.Receipts.FindByKey(ctx, ev.Project(), ev.PO(), info.FileNumber); err == nil {
		p.logger.Info("Receipt already recorded", zap.String("path", ev.Path))
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("failed to look up receipt: %w", err)
	}

	text, err := p.readText(ctx, ev)
	if err != nil {
		return err
	}
	data, err := p.docs.ExtractReceipt(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to extract receipt: %w", err)
	}
	link, err := p.files.CreateShareLink(ctx, ev.Path)
	if err != nil {
		return fmt.Errorf("failed to share receipt: %w", err)
	}
	order, err := p.localPO(ctx, ev, item)
	if err != nil {
		return err
	}

	receipt := &procurement.Receipt{
		BaseEntity:    shared.NewBaseEntity(),
		ProjectNumber: ev.Project(),
		PONumber:      ev.PO(),
		DetailNumber:  info.FileNumber,
		LineNumber:    1,
		Total:         data.TotalAmount.Decimal,
		Description:   data.Description,
		FileLink:      link,
	}
	detail, err := procurement.NewDetailItem(order, info.FileNumber, 1)
	if err != nil {
		return err
	}
	detail.PaymentType = procurement.PaymentTypeCC
	detail.Description = data.Description
	detail.Rate = data.TotalAmount.Decimal
	detail.Quantity = decimal.NewFromInt(1)
	detail.FileLink = link
	if date, ok := extraction.ParseDate(data.Date); ok {
		receipt.PurchaseDate = &date
		detail.TransactionDate = &date
	}
	detail.Recalculate()
	detail.RecordCreated()

	if err := p.repos.Receipts.SaveWithItem(ctx, receipt, detail); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	p.logger.Info("Recorded receipt",
		zap.String("project", ev.Project()),
		zap.String("po", ev.PO()),
		zap.String("receipt", info.FileNumber),
		zap.String("total", receipt.Total.StringFixed(2)),
	)
	return nil
}

// readText downloads the document, archives it and extracts its text
func (p *Processor) readText(ctx context.Context, ev *fileevent.FileEvent) (string, error) {
	data, err := p.files.Download(ctx, ev.Path)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", ev.Path, err)
	}
	if key, err := p.archive.Archive(ctx, ev.Project(), ev.PO(), ev.FileName, data); err != nil {
		p.logger.Warn("Failed to archive document", zap.String("path", ev.Path), zap.Error(err))
	} else if key != "" {
		p.logger.Debug("Archived document", zap.String("key", key))
	}
	text, err := p.text.ExtractText(ctx, ev.FileName, data)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", ev.FileName, err)
	}
	return text, nil
}

func dateText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
