// Package auth implements the token and session lifecycle behind login,
// registration, and password recovery.
//
// Sessions and nonces:
//   - Every user owns at most one session row whose nonce is the single
//     currently valid token family. Access and refresh tokens embed the nonce
//     active when they were minted; rotating or clearing the nonce revokes
//     every previously issued token in O(1) without a revocation list.
//   - Rotation is last-writer-wins. Two concurrent refreshes race on purpose:
//     whichever loses holds a stale nonce and is rejected on its next use.
//
// Pending actions:
//   - Registration and recovery are both time-boxed, single-use pending
//     actions awaiting confirmation. The generic PendingActions registry
//     enforces at most one live record per subject (repeat requests return
//     the existing record), judges expiry lazily at confirm time, and is
//     cleaned by an on-demand sweep rather than a background timer.
//
// Flows:
//   - Auther orchestrates login, logout, and token refresh. The command
//     handlers (RequestRegistration*, ConfirmRegistration*, RequestRecovery*,
//     ConfirmRecovery*) compose the registries with the Hasher and Notifier
//     collaborators and surface one typed failure per outcome.
package auth
