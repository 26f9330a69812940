package email

const (
	subjectTaskCreated       = "New fulfillment task assigned to you"
	subjectTaskOverdueFmt    = "Overdue: %s"
	subjectPaymentReceiptFmt = "Payment received for %s"
)
