// Package types defines the attendance entities shared by every store and
// by the reconciliation engine.
//
// # Entities
//
//   - Member: a roster entry with an integer id assigned by whichever store
//     creates it first. Members are soft-deactivated (IsActive=false) rather
//     than removed.
//   - AttendanceRecord: one status per (MemberID, SabbathDate). SabbathDate is
//     always an ISO date (YYYY-MM-DD) and is the partition key for
//     reconciliation.
//   - Visitor: a guest with an opaque UUID. Two visitors with the same first
//     and last name (case-insensitive) are treated as the same person during
//     reconciliation.
//
// # Canonical JSON
//
// Field names are camelCase so the canonical flat-store documents stay
// compatible with the spreadsheet exports that operators already use:
//
//	{
//	  "id": 7,
//	  "memberId": 3,
//	  "sabbathDate": "2024-08-16",
//	  "status": "present",
//	  "notes": "",
//	  "createdAt": "2024-08-16T10:00:00Z",
//	  "updatedAt": "2024-08-16T10:00:00Z"
//	}
//
// SyncResult is the summary returned by every reconciliation run and is
// serialized as {created, updated, errors, errorDetails}.
package types
