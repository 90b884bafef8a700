// Package profile manages named authentication profiles stored in
// profiles.yaml next to the configuration file.
//
// A profile binds a name to an auth.AuthProfile. The active profile is
// chosen by the --profile flag, then the ISPAUTH_PROFILE environment
// variable, then the current-profile entry of the file.
//
//	current-profile: work
//	profiles:
//	  - name: work
//	    auth:
//	      username: jane@acme.cyberark.cloud
//	      method: identity
//	      identity:
//	        mfaType: email
//	        interactive: true
package profile
