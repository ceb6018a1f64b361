/*
Package rabbitmq drives a local broker through rabbitmqctl and
rabbitmq-plugins.

Every method maps to one command line with fixed arguments. A nonzero exit
becomes a *CommandError carrying the command, exit code and stderr; the
password argument of change_password is redacted in it. ClusterStatus
parses both the Erlang-term and the tabular output of cluster_status into
the exact set of rabbit@<host> node names, so membership is decided by
identity rather than substring.
*/
package rabbitmq
