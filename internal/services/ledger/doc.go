/*
Package ledger owns every change to a user's balance and to a settlement's status.

Balance mutations (credit, debit, refund) are only available inside a repository
transaction, and CommitSettlement pairs each of them with a state machine
transition on the same record. The Guard (Resolve) is the entry point used by
the deposit and withdrawal engines: it row-locks the record, turns repeated
resolutions of a terminal record into no-ops and refuses records that are held
for manual reconciliation.

Every mutation appends a LedgerEntry. The storage layer keeps (reference, kind)
unique, so one record can never be credited, debited or refunded twice even if
the state machine were bypassed. Reconcile compares those entries against the
record status and places mismatching records on hold.
*/
package ledger
